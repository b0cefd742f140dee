package main

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

type serviceConfig struct {
	// Backend selects the solver implementation: "dnf", "dnf5" or
	// "pacman".
	Backend string `toml:"backend"`

	// Engine paths override the built-in libdnf shim locations.
	DNFEngine  string `toml:"dnf_engine"`
	DNF5Engine string `toml:"dnf5_engine"`

	// MaxCacheSize bounds the metadata cache, in bytes. Zero keeps the
	// built-in limit.
	MaxCacheSize uint64 `toml:"max_cache_size"`

	LogLevel string `toml:"log_level"`
	Journal  bool   `toml:"journal"`
}

func parseConfig(file string) (*serviceConfig, error) {
	config := serviceConfig{
		Backend:  "dnf",
		LogLevel: "info",
	}

	_, err := toml.DecodeFile(file, &config)
	if err != nil {
		// A non-existing config isn't an error, use defaults in this
		// case.
		if !os.IsNotExist(err) {
			return nil, err
		}
		logrus.Debug("Configuration file not found, using defaults")
	}

	return &config, nil
}
