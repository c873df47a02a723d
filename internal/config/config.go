// Package config wraps viper behind a small read-only accessor and loads the
// application configuration file: server address, database backend, and the
// declared tables each repository is built from.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is a nil-safe read accessor over a viper instance.
type Config struct {
	v *viper.Viper
}

// New wraps a viper instance. A nil viper yields a Config returning zero
// values for every key.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// GetString returns the string value for key.
func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// GetInt returns the int value for key.
func (c *Config) GetInt(key string) int {
	if c.v == nil {
		return 0
	}
	return c.v.GetInt(key)
}

// GetBool returns the bool value for key.
func (c *Config) GetBool(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.GetBool(key)
}

// GetDuration returns the duration value for key.
func (c *Config) GetDuration(key string) time.Duration {
	if c.v == nil {
		return 0
	}
	return c.v.GetDuration(key)
}

// IsSet reports whether key has a value.
func (c *Config) IsSet(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Sub returns the configuration subtree under key. Never returns nil.
func (c *Config) Sub(key string) *Config {
	if c.v == nil {
		return &Config{}
	}
	sub := c.v.Sub(key)
	if sub == nil {
		return &Config{}
	}
	return &Config{v: sub}
}

// Unmarshal decodes the configuration into target via mapstructure tags.
func (c *Config) Unmarshal(target any) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(target)
}

// File is the typed application configuration.
type File struct {
	Server   ServerConfig  `mapstructure:"server"`
	Database DBConfig      `mapstructure:"database"`
	Tables   []TableConfig `mapstructure:"tables"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address, defaulting to 0.0.0.0:8080.
func (s ServerConfig) Addr() string {
	host := s.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := s.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// DBConfig selects the backend dialect and connection string.
type DBConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// TableConfig declares one repository-backed table.
type TableConfig struct {
	Name           string         `mapstructure:"name"`
	Mode           string         `mapstructure:"mode"` // base|cache|kv|content
	SoftDelete     bool           `mapstructure:"soft_delete"`
	HasPriority    bool           `mapstructure:"has_priority"`
	SupportedTypes []string       `mapstructure:"supported_types"`
	ValueType      string         `mapstructure:"value_type"`
	Columns        []ColumnConfig `mapstructure:"columns"`
}

// ColumnConfig declares one extra column.
type ColumnConfig struct {
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"` // int|bigint|float|text|bool|json|timestamp
	NotNull bool   `mapstructure:"not_null"`
	Unique  bool   `mapstructure:"unique"`
	Default string `mapstructure:"default"`
}

// Load reads the configuration file at path (YAML), falling back to defaults
// when path is empty: an in-process SQLite database and port 8080.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "tablestore.db")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}
