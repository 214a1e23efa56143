package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file name.
const FileName = ".lokedit.yaml"

// File is the on-disk .lokedit.yaml structure. Every field is optional.
type File struct {
	Store             Store    `yaml:"store,omitempty"`
	CatalogueURL      string   `yaml:"catalogue_url,omitempty"`
	CatalogueTimeout  string   `yaml:"catalogue_timeout,omitempty"`
	Listen            string   `yaml:"listen,omitempty"`
	WebDir            string   `yaml:"web_dir,omitempty"`
	CORSOrigins       []string `yaml:"cors_origins,omitempty"`
	ImportConcurrency int      `yaml:"import_concurrency,omitempty"`
	Debug             bool     `yaml:"debug,omitempty"`

	timeout time.Duration
	dir     string
}

// LoadFile reads and validates .lokedit.yaml from rootDir.
// Returns nil if the file does not exist.
func LoadFile(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.dir = rootDir

	if f.CatalogueTimeout != "" {
		d, err := time.ParseDuration(f.CatalogueTimeout)
		if err != nil {
			return nil, fmt.Errorf("%s: catalogue_timeout: %w", path, err)
		}
		f.timeout = d
	}
	if f.ImportConcurrency < 0 {
		return nil, fmt.Errorf("%s: import_concurrency must not be negative", path)
	}

	return &f, nil
}

// applyTo copies the fields set in f onto cfg. Relative paths are resolved
// against the directory holding .lokedit.yaml.
func (f *File) applyTo(cfg *Config) {
	if f.Store.Backend != "" {
		cfg.Store.Backend = f.Store.Backend
	}
	if f.Store.Path != "" {
		cfg.Store.Path = f.resolvePath(f.Store.Path)
	}
	if f.CatalogueURL != "" {
		cfg.CatalogueURL = f.CatalogueURL
	}
	if f.timeout > 0 {
		cfg.CatalogueTimeout = f.timeout
	}
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	if f.WebDir != "" {
		cfg.WebDir = f.resolvePath(f.WebDir)
	}
	if len(f.CORSOrigins) > 0 {
		cfg.CORSOrigins = f.CORSOrigins
	}
	if f.ImportConcurrency > 0 {
		cfg.ImportConcurrency = f.ImportConcurrency
	}
	if f.Debug {
		cfg.Debug = true
	}
}

func (f *File) resolvePath(p string) string {
	if filepath.IsAbs(p) || f.dir == "" {
		return p
	}
	return filepath.Join(f.dir, p)
}
