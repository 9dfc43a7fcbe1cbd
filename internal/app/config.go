package app

import (
	"fmt"

	"sidekick/internal/config"
	"sidekick/internal/logger"
)

// LoadConfig loads configuration and installs the logger it describes.
// A non-empty logFormat overrides the configured format.
func LoadConfig(path, logFormat string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logFormat == "" {
		logFormat = cfg.Log.Format
	}
	logger.Init(cfg.Log.Level, logFormat)
	return cfg, nil
}
