// Package config loads the optional pydl configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the file-configurable defaults. Command line flags
// override whatever is set here.
type Config struct {
	IndexURL       string   `yaml:"index-url"`
	ExtraIndexURLs []string `yaml:"extra-index-urls"`
	FindLinks      []string `yaml:"find-links"`
	Dest           string   `yaml:"dest"`
	CacheDir       string   `yaml:"cache-dir"`
	// RedisURL switches the metadata cache to redis when set
	// ("redis://host:port/db").
	RedisURL string `yaml:"redis-url"`
	// Timeout is the per-request HTTP timeout in seconds.
	Timeout int `yaml:"timeout"`
	// Retries is how often a failed download is retried.
	Retries int `yaml:"retries"`
	// Parallel bounds concurrent downloads.
	Parallel     int  `yaml:"parallel"`
	PreferBinary bool `yaml:"prefer-binary"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{
		IndexURL: "https://pypi.org/simple/",
		Dest:     ".",
		Timeout:  60,
		Retries:  5,
		Parallel: 4,
	}
	if dir, err := os.UserCacheDir(); err == nil {
		cfg.CacheDir = filepath.Join(dir, "pydl")
	}
	return cfg
}

// Load reads the configuration. An explicit path (argument or
// $PYDL_CONFIG) must exist; the discovered ~/.config/pydl/config.yaml
// is optional. File values override the defaults, everything else keeps
// them.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if env := os.Getenv("PYDL_CONFIG"); env != "" {
			path = env
			explicit = true
		}
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, ".config", "pydl", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
