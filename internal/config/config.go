// Package config loads runtime settings from an optional YAML file and the
// process environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr    = ":8080"
	DefaultAPIBase = "https://api.nano-banana.pro/v1"
)

type Config struct {
	Addr             string        `yaml:"addr"`
	APIBase          string        `yaml:"api_base"`
	APIKey           string        `yaml:"api_key"`
	APIKeyParam      string        `yaml:"api_key_param"`
	ProxyURL         string        `yaml:"proxy_url"`
	Timeout          time.Duration `yaml:"timeout"`
	ArchiveBucket    string        `yaml:"archive_bucket"`
	ArchiveDir       string        `yaml:"archive_dir"`
	ArchivePublicURL string        `yaml:"archive_public_url"`
	Distribution     string        `yaml:"distribution"`
	LogLevel         string        `yaml:"log_level"`

	// Lambda is set when running inside AWS Lambda, where nothing listens
	// on Addr.
	Lambda bool `yaml:"-"`
}

// Load reads path (skipped when empty) and then applies the environment.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	overrides := map[string]*string{
		"ADDR":                     &cfg.Addr,
		"NANOBANANA_API_BASE":      &cfg.APIBase,
		"NANOBANANA_API_KEY":       &cfg.APIKey,
		"NANOBANANA_API_KEY_PARAM": &cfg.APIKeyParam,
		"PROXY_URL":                &cfg.ProxyURL,
		"ARCHIVE_BUCKET":           &cfg.ArchiveBucket,
		"ARCHIVE_DIR":              &cfg.ArchiveDir,
		"ARCHIVE_PUBLIC_URL":       &cfg.ArchivePublicURL,
		"DISTRIBUTION":             &cfg.Distribution,
		"LOG_LEVEL":                &cfg.LogLevel,
	}
	for key, field := range overrides {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}
	if v, ok := lookup("AWS_LAMBDA_FUNCTION_NAME"); ok && v != "" {
		cfg.Lambda = true
	}

	if v, ok := lookup("HTTP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing HTTP_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}

	return cfg.withDefaults()
}

func (c Config) withDefaults() (Config, error) {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	} else {
		c.APIBase = strings.TrimSuffix(c.APIBase, "/")
	}
	if c.Timeout < 0 {
		return Config{}, errors.New("timeout must not be negative")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return Config{}, fmt.Errorf("invalid addr %q: %w", c.Addr, err)
	}
	// An empty proxy URL makes the console call the handler in process.
	if c.Lambda {
		c.ProxyURL = ""
	}
	c.ProxyURL = strings.TrimSuffix(c.ProxyURL, "/")
	return c, nil
}
