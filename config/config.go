package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every configurable value for the log server and its CLI.
type Config struct {
	// Server
	ListenAddr   string        // e.g. ":8080"
	ReadTimeout  time.Duration // per-request read timeout of the HTTP server
	WriteTimeout time.Duration

	// Persistence
	DBPath   string // path to the SQLite file, e.g. "./logserver.db"
	Timezone string // IANA zone of stored wall-clock times; empty = local

	// Client
	ServerURL     string // e.g. http://secondpi.local:8080
	ClientTimeout time.Duration

	LogLevel string // debug|info|warn|error

	// Sources maps a stream name to the external source sampled by the
	// `log` and `sample` commands.
	Sources map[string]Source
}

// Source describes where a stream's live value comes from.
type Source struct {
	Type   string  // "json" or "prometheus"
	URL    string  // endpoint (json) or Prometheus base URL
	Field  string  // dotted path into the JSON document, e.g. "properties.temperature.value"
	Query  string  // PromQL expression for prometheus sources
	Scale  float64 // value*Scale + Offset; zero scale means 1
	Offset float64
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"listen":    "ListenAddr",
	"db":        "DBPath",
	"tz":        "Timezone",
	"server":    "ServerURL",
	"log-level": "LogLevel",
}

// Load reads configuration from (in decreasing priority):
//  1. command-line flags present in flags (may be nil)
//  2. environment variables prefixed LOGSERVER_ (e.g. LOGSERVER_DBPATH)
//  3. a yaml file: the "config" flag if set, else ./configs/config.yaml if it exists.
//
// It returns a fully populated *Config or an error.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("ListenAddr", ":8080")
	v.SetDefault("ReadTimeout", 30*time.Second)
	v.SetDefault("WriteTimeout", 30*time.Second)
	v.SetDefault("DBPath", "./logserver.db")
	v.SetDefault("Timezone", "")
	v.SetDefault("ServerURL", "http://localhost:8080")
	v.SetDefault("ClientTimeout", 10*time.Second)
	v.SetDefault("LogLevel", "info")

	v.SetEnvPrefix("logserver")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := ""
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil {
			explicit = f.Value.String()
		}
	}

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", explicit, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DBPath must not be empty")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location resolves Timezone, defaulting to the process's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid Timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Clock returns a wall-clock source in the configured zone.
func (c *Config) Clock() (func() time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return func() time.Time { return time.Now().In(loc) }, nil
}
