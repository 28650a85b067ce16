// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like CATALOG_BASE_URL
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig applies direct env fallbacks for secrets that are
// commonly set outside the yaml files.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Analyzer.APIKey == "" {
		if val := os.Getenv("GENAI_API_KEY"); val != "" {
			cfg.Analyzer.APIKey = val
		}
	}
	if cfg.Selector.APIKey == "" {
		if val := os.Getenv("GENAI_API_KEY"); val != "" {
			cfg.Selector.APIKey = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}

	if cfg.Instructions.LDrawPath == "" {
		if val := os.Getenv("LDRAW_PATH"); val != "" {
			cfg.Instructions.LDrawPath = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "brickkit"
	}

	// Catalog defaults
	if cfg.Catalog.BaseURL == "" {
		cfg.Catalog.BaseURL = "https://library.ldraw.org/omr"
	}
	if cfg.Catalog.Timeout == 0 {
		cfg.Catalog.Timeout = 10000
	}
	if cfg.Catalog.MaxRetries == 0 {
		cfg.Catalog.MaxRetries = 2
	}
	if cfg.Catalog.Index.IndexName == "" {
		cfg.Catalog.Index.IndexName = "models"
	}

	// Analyzer defaults
	if cfg.Analyzer.Timeout == 0 {
		cfg.Analyzer.Timeout = 15000
	}
	if cfg.Analyzer.MaxRetries == 0 {
		cfg.Analyzer.MaxRetries = 2
	}
	if cfg.Analyzer.CacheTTL == 0 {
		cfg.Analyzer.CacheTTL = 3600000
	}

	// Search policy defaults
	if cfg.Search.MinResults == 0 {
		cfg.Search.MinResults = 3
	}
	if cfg.Search.MaxRelaxations == 0 {
		cfg.Search.MaxRelaxations = 3
	}
	if len(cfg.Search.RelaxationOrder) == 0 {
		cfg.Search.RelaxationOrder = []string{"color", "size", "theme"}
	}
	if cfg.Search.MaxCandidates == 0 {
		cfg.Search.MaxCandidates = 25
	}

	// Selector defaults
	if cfg.Selector.Timeout == 0 {
		cfg.Selector.Timeout = 30000
	}
	if cfg.Selector.MaxRetries == 0 {
		cfg.Selector.MaxRetries = 3
	}
	if cfg.Selector.MaxCandidates == 0 {
		cfg.Selector.MaxCandidates = 5
	}

	// Cache defaults
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "omr_cache"
	}
	if cfg.Cache.MaxBytes == 0 {
		cfg.Cache.MaxBytes = 512 << 20
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 86400000
	}
	if cfg.Cache.DownloadTimeout == 0 {
		cfg.Cache.DownloadTimeout = 60000
	}

	// Instruction tool defaults
	if cfg.Instructions.ToolPath == "" {
		cfg.Instructions.ToolPath = "leocad"
	}
	if cfg.Instructions.OutputDir == "" {
		cfg.Instructions.OutputDir = "omr_output"
	}
	if cfg.Instructions.Timeout == 0 {
		cfg.Instructions.Timeout = 300000
	}
	if cfg.Instructions.ImageWidth == 0 {
		cfg.Instructions.ImageWidth = 1280
	}
	if cfg.Instructions.ImageHeight == 0 {
		cfg.Instructions.ImageHeight = 720
	}
	if cfg.Instructions.StepLimit == 0 {
		cfg.Instructions.StepLimit = 15
	}

	// Document defaults
	if cfg.Document.PageSize == "" {
		cfg.Document.PageSize = "A4"
	}
	if cfg.Document.MarginMM == 0 {
		cfg.Document.MarginMM = 19
	}

	if cfg.Pipeline.ProgressBuffer == 0 {
		cfg.Pipeline.ProgressBuffer = 64
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 10
	}
	if cfg.Database.Redis.MinIdleConns == 0 {
		cfg.Database.Redis.MinIdleConns = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9102"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if cfg.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if cfg.Cache.MaxBytes <= 0 {
		return fmt.Errorf("cache.max_bytes must be positive")
	}

	for _, step := range cfg.Search.RelaxationOrder {
		switch step {
		case "color", "size", "theme":
		default:
			return fmt.Errorf("search.relaxation_order contains unknown step %q", step)
		}
	}

	if cfg.Database.Postgres.Enabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}

	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Catalog.Index.Enabled && len(cfg.Catalog.Index.Addresses) == 0 {
		return fmt.Errorf("catalog.index.addresses is required")
	}

	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required")
	}
	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.FromEmail == "" {
		return fmt.Errorf("notifications.email.from_email is required")
	}

	return nil
}
