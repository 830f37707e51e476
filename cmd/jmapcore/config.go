package main

import (
	"fmt"

	"github.com/jmapstore/core/pkg/config"
)

// loadConfig layers the persistent --config/--data-dir/--bind-addr flags
// on top of config.Default(), matching pkg/config.Load's documented
// Default-then-Load-then-flags order.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		if err := config.Load(configPath, cfg); err != nil {
			return nil, err
		}
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
