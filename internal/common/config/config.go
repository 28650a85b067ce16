// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct. It is resolved once at
// startup and passed explicitly into each component's constructor.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Catalog       CatalogConfig      `mapstructure:"catalog"`
	Analyzer      AnalyzerConfig     `mapstructure:"analyzer"`
	Search        SearchConfig       `mapstructure:"search"`
	Selector      SelectorConfig     `mapstructure:"selector"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Instructions  InstructionsConfig `mapstructure:"instructions"`
	Document      DocumentConfig     `mapstructure:"document"`
	Pipeline      PipelineConfig     `mapstructure:"pipeline"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// CatalogConfig holds settings for the external model repository.
type CatalogConfig struct {
	BaseURL    string              `mapstructure:"base_url"`
	Timeout    int                 `mapstructure:"timeout"` // milliseconds
	MaxRetries int                 `mapstructure:"max_retries"`
	Index      ElasticsearchConfig `mapstructure:"index"`
}

type ElasticsearchConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	IndexName  string   `mapstructure:"index_name"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
}

// AnalyzerConfig holds settings for the prompt analysis stage.
type AnalyzerConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
	CacheTTL   int    `mapstructure:"cache_ttl"` // milliseconds
}

// SearchConfig holds the strategy engine policy knobs.
type SearchConfig struct {
	MinResults      int      `mapstructure:"min_results"`
	MaxRelaxations  int      `mapstructure:"max_relaxations"`
	RelaxationOrder []string `mapstructure:"relaxation_order"`
	MaxCandidates   int      `mapstructure:"max_candidates"`
}

// SelectorConfig holds settings for the reasoning-service selection stage.
type SelectorConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
	MaxRetries    int    `mapstructure:"max_retries"`
	MaxCandidates int    `mapstructure:"max_candidates"` // summaries sent per request
}

// CacheConfig holds settings for the model download cache.
type CacheConfig struct {
	Dir             string `mapstructure:"dir"`
	MaxBytes        int64  `mapstructure:"max_bytes"`
	TTL             int    `mapstructure:"ttl"`              // milliseconds
	DownloadTimeout int    `mapstructure:"download_timeout"` // milliseconds
}

// InstructionsConfig holds settings for the external CAD tool.
type InstructionsConfig struct {
	ToolPath    string `mapstructure:"tool_path"`
	LDrawPath   string `mapstructure:"ldraw_path"`
	OutputDir   string `mapstructure:"output_dir"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
	ImageWidth  int    `mapstructure:"image_width"`
	ImageHeight int    `mapstructure:"image_height"`
	StepLimit   int    `mapstructure:"step_limit"`
}

// DocumentConfig holds settings for PDF assembly.
type DocumentConfig struct {
	PageSize  string  `mapstructure:"page_size"` // A4 or Letter
	MarginMM  float64 `mapstructure:"margin_mm"`
	CoverPage bool    `mapstructure:"cover_page"`
}

// PipelineConfig holds orchestrator policy knobs.
type PipelineConfig struct {
	ProgressBuffer      int  `mapstructure:"progress_buffer"`
	RequireInstructions bool `mapstructure:"require_instructions"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// NotificationConfig holds settings for the completion notifier.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds the /metrics listener settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
