// Package config holds the configuration for opening relic stores. Schema
// declaration and DDL stay entirely outside of it; this is only the handful
// of knobs the storage gateway needs.
package config

import (
	"fmt"
	"os"

	"github.com/dekarrin/relic/logging"
	"gopkg.in/yaml.v3"
)

// Store is the configuration for a SQLite-backed store.
type Store struct {
	// DataDir is the directory the database file lives in. It is created if
	// it does not exist.
	DataDir string `yaml:"dir"`

	// DataFile is the name of the database file within DataDir.
	DataFile string `yaml:"file"`

	// FetchSize is the number of rows fetched from an open result stream per
	// chunk during query iteration.
	FetchSize int `yaml:"fetch_size"`

	// Log selects the provider used for statement tracing. Blank or "none"
	// disables tracing.
	Log string `yaml:"log"`

	// LogFile is the file statements are traced to. If blank, the logger
	// writes to stderr only.
	LogFile string `yaml:"log_file"`
}

// Load reads a Store configuration from the YAML file at path and fills in
// defaults for unset values.
func Load(path string) (Store, error) {
	var cfg Store

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg.FillDefaults(), nil
}

// FillDefaults returns a new Store identical to cfg but with unset values set
// to their defaults. It is not called implicitly; callers constructing a
// Store by hand should call Validate on the return value of FillDefaults.
func (cfg Store) FillDefaults() Store {
	newCFG := cfg

	if newCFG.DataDir == "" {
		newCFG.DataDir = "."
	}
	if newCFG.DataFile == "" {
		newCFG.DataFile = "data.db"
	}
	if newCFG.FetchSize < 1 {
		newCFG.FetchSize = 64
	}
	if newCFG.Log == "" {
		newCFG.Log = logging.None.String()
	}

	return newCFG
}

// Validate returns an error if the Store has invalid field values set. Empty
// and unset values are considered invalid; if defaults are intended, callers
// should call FillDefaults first.
func (cfg Store) Validate() error {
	if cfg.DataDir == "" {
		return fmt.Errorf("dir: must not be empty")
	}
	if cfg.DataFile == "" {
		return fmt.Errorf("file: must not be empty")
	}
	if cfg.FetchSize < 1 {
		return fmt.Errorf("fetch_size: must be at least 1")
	}
	if _, err := logging.ParseProvider(cfg.Log); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// LogProvider returns the parsed logging provider named by the Log field.
func (cfg Store) LogProvider() (logging.Provider, error) {
	return logging.ParseProvider(cfg.Log)
}
