// Package config loads lokedit settings.
//
// Settings come from three layers, later layers winning:
//
//  1. built-in defaults
//  2. .lokedit.yaml in the project root
//  3. LOKEDIT_* environment variables (a .env file in the project root is
//     loaded first, without overriding variables already set)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPebble = "pebble"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config is the resolved lokedit configuration.
type Config struct {
	// Store selects and locates the persistence backend.
	Store Store `yaml:"store" envPrefix:"LOKEDIT_STORE_"`
	// CatalogueURL is the locale catalogue source: http(s) URL or file path.
	// Empty means the built-in catalogue only.
	CatalogueURL string `yaml:"catalogue_url,omitempty" env:"LOKEDIT_CATALOGUE_URL"`
	// CatalogueTimeout bounds the one-time catalogue fetch.
	CatalogueTimeout time.Duration `yaml:"catalogue_timeout,omitempty" env:"LOKEDIT_CATALOGUE_TIMEOUT"`
	// Listen is the HTTP listen address for "lokedit serve".
	Listen string `yaml:"listen,omitempty" env:"LOKEDIT_LISTEN"`
	// WebDir holds static web bundles (locale-<code>.json) served under /i18n/.
	WebDir string `yaml:"web_dir,omitempty" env:"LOKEDIT_WEB_DIR"`
	// CORSOrigins lists origins allowed to call the HTTP API.
	CORSOrigins []string `yaml:"cors_origins,omitempty" env:"LOKEDIT_CORS_ORIGINS" envSeparator:","`
	// ImportConcurrency limits parallel file reads in a batch import.
	ImportConcurrency int `yaml:"import_concurrency,omitempty" env:"LOKEDIT_IMPORT_CONCURRENCY"`
	// Debug enables debug logging.
	Debug bool `yaml:"debug,omitempty" env:"LOKEDIT_DEBUG"`
}

// Store configures the persistence backend.
type Store struct {
	// Backend: "pebble", "file" or "memory".
	Backend string `yaml:"backend,omitempty" env:"BACKEND"`
	// Path is the pebble directory or the file store's YAML document.
	Path string `yaml:"path,omitempty" env:"PATH"`
}

// Defaults.
const (
	DefaultListen            = "127.0.0.1:8080"
	DefaultCatalogueTimeout  = 10 * time.Second
	DefaultImportConcurrency = 4
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store:             Store{Backend: BackendPebble},
		Listen:            DefaultListen,
		CatalogueTimeout:  DefaultCatalogueTimeout,
		ImportConcurrency: DefaultImportConcurrency,
	}
}

// Load resolves the configuration for the project at rootDir.
func Load(rootDir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(rootDir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	file, err := LoadFile(rootDir)
	if err != nil {
		return nil, err
	}
	if file != nil {
		file.applyTo(cfg)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve fills path defaults and validates the result.
func (c *Config) resolve() error {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendPebble
	}
	switch c.Store.Backend {
	case BackendPebble, BackendFile:
		if c.Store.Path == "" {
			dir, err := DataDir()
			if err != nil {
				return err
			}
			c.Store.Path = defaultStorePath(dir, c.Store.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q (valid: pebble, file, memory)", c.Store.Backend)
	}

	if c.CatalogueTimeout <= 0 {
		c.CatalogueTimeout = DefaultCatalogueTimeout
	}
	if c.ImportConcurrency <= 0 {
		c.ImportConcurrency = DefaultImportConcurrency
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	return nil
}

func defaultStorePath(dataDir, backend string) string {
	if backend == BackendFile {
		return filepath.Join(dataDir, "state.yaml")
	}
	return filepath.Join(dataDir, "state")
}

const dataDirName = "lokedit"

// DataDir returns lokedit's data directory:
//
//	$XDG_DATA_HOME/lokedit/  (default: ~/.local/share/lokedit/)
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}
