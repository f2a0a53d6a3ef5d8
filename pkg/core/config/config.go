// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway configuration from YAML with
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Logging   LoggingConfig     `yaml:"logging"`
	Providers []ProviderConfig  `yaml:"providers"`
	Storage   StorageConfig     `yaml:"storage"`
	WebSearch WebSearchConfig   `yaml:"web_search"`
	MCP       map[string]string `yaml:"mcp"` // server label -> URL
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// ProviderConfig describes one inference backend. Type selects the factory
// registered with provider.Backends ("openai", "vllm", "gemini", "mock").
type ProviderConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// StorageConfig selects the session store backend.
type StorageConfig struct {
	Type string `yaml:"type"` // "memory" (default), "sqlite" or "postgres"
	Path string `yaml:"path"` // sqlite database file
	DSN  string `yaml:"dsn"`  // postgres connection string
}

// WebSearchConfig selects the web search provider backing the web_search
// built-in tool. An empty provider disables the tool.
type WebSearchConfig struct {
	Provider string `yaml:"provider"` // "brave" or "tavily"
	APIKey   string `yaml:"api_key"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration: a single mock backend with an
// in-memory store, enough to run the gateway without a config file.
func Default() *Config {
	cfg := &Config{
		Providers: []ProviderConfig{
			{Name: "mock", Type: "mock"},
		},
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file.
func applyEnvOverrides(cfg *Config) {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.APIKey != "" {
			continue
		}
		switch p.Type {
		case "openai", "vllm":
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			p.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if cfg.WebSearch.APIKey == "" {
		switch cfg.WebSearch.Provider {
		case "brave":
			cfg.WebSearch.APIKey = os.Getenv("BRAVE_SEARCH_API_KEY")
		case "tavily":
			cfg.WebSearch.APIKey = os.Getenv("TAVILY_API_KEY")
		}
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = dsn
		if cfg.Storage.Type == "" {
			cfg.Storage.Type = "postgres"
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 60 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	for i := range cfg.Providers {
		if cfg.Providers[i].Name == "" {
			cfg.Providers[i].Name = cfg.Providers[i].Type
		}
	}
}

func (cfg *Config) validate() error {
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	seen := map[string]bool{}
	for _, p := range cfg.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q: type is required", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
	}
	switch cfg.Storage.Type {
	case "memory":
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: sqlite requires a path")
		}
	case "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage: postgres requires a dsn")
		}
	default:
		return fmt.Errorf("storage: unknown type %q", cfg.Storage.Type)
	}
	return nil
}
