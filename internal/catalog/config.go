// internal/catalog/config.go
package catalog

import (
	"time"

	"brickkit/internal/common/config"
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	IndexName  string
}

func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		BaseURL:    cfg.Catalog.BaseURL,
		Timeout:    config.GetDuration(cfg.Catalog.Timeout),
		MaxRetries: cfg.Catalog.MaxRetries,
		IndexName:  cfg.Catalog.Index.IndexName,
	}
}
