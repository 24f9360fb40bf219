// Package config loads and validates server configuration.
//
// DESIGN: Configuration is layered: built-in defaults, then an optional YAML
// file, then environment variable overrides. Defaults live in defaults.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig controls the mock store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AIConfig controls the text-generation collaborator.
type AIConfig struct {
	Provider  string        `yaml:"provider"` // openai (default), anthropic, bedrock
	Endpoint  string        `yaml:"endpoint"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MonitoringConfig controls the JSONL request log.
type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	AI         AIConfig         `yaml:"ai"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultServerPort,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Store: StoreConfig{Path: DefaultStorePath},
		AI: AIConfig{
			Provider:  "openai",
			Endpoint:  DefaultAIEndpoint,
			Model:     DefaultAIModel,
			MaxTokens: DefaultAIMaxTokens,
			Timeout:   DefaultAITimeout,
		},
		Monitoring: MonitoringConfig{Enabled: true, LogPath: "logs/requests.jsonl"},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("IMOCK_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("IMOCK_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("QWEN_API_KEY"); v != "" && c.AI.APIKey == "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("IMOCK_AI_PROVIDER"); v != "" {
		c.AI.Provider = v
	}
	if v := os.Getenv("IMOCK_AI_ENDPOINT"); v != "" {
		c.AI.Endpoint = v
	}
	if v := os.Getenv("IMOCK_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("IMOCK_REQUEST_LOG"); v != "" {
		c.Monitoring.LogPath = v
	}
}
