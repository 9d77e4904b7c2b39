// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads gatekeeper settings. Sources are layered, later
// ones winning: built-in defaults, a YAML file, environment variables and
// command-line flags.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/gatekeeper/internal/xdg"
)

// Backend and verifier names.
const (
	SessionMemory = "memory"
	SessionStore  = "store"
	SessionRedis  = "redis"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// DatabaseConfig locates PostgreSQL. URL wins over the discrete fields.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
}

// RedisConfig locates the Redis session backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// Config is the full gatekeeper configuration.
type Config struct {
	ListenAddr     string         `koanf:"listen_addr"`
	MetricsAddr    string         `koanf:"metrics_addr"`
	LogFormat      string         `koanf:"log_format"`
	AuthType       string         `koanf:"auth_type"`
	SessionName    string         `koanf:"session_name"`
	SessionBackend string         `koanf:"session_backend"`
	StoreBackend   string         `koanf:"store_backend"`
	ExcludedPaths  []string       `koanf:"excluded_paths"`
	Database       DatabaseConfig `koanf:"database"`
	Redis          RedisConfig    `koanf:"redis"`
}

// DefaultExcludedPaths never require credentials.
var DefaultExcludedPaths = []string{
	"/api/v1/status/",
	"/api/v1/unauthorized/",
	"/api/v1/forbidden/",
	"/api/v1/auth_session/login/",
}

func defaults() map[string]any {
	return map[string]any{
		"listen_addr":      "0.0.0.0:5000",
		"metrics_addr":     "127.0.0.1:9100",
		"log_format":       "json",
		"auth_type":        "session",
		"session_name":     "session_id",
		"session_backend":  SessionMemory,
		"store_backend":    StoreMemory,
		"excluded_paths":   slices.Clone(DefaultExcludedPaths),
		"database.host":    "localhost",
		"database.port":    5432,
		"database.user":    "gatekeeper",
		"database.name":    "gatekeeper",
		"database.sslmode": "disable",
		"redis.addr":       "localhost:6379",
		"redis.prefix":     "gatekeeper",
	}
}

// envKeys maps recognized environment variables to config keys.
var envKeys = map[string]string{
	"SESSION_NAME":                "session_name",
	"AUTH_TYPE":                   "auth_type",
	"DATABASE_URL":                "database.url",
	"GATEKEEPER_LISTEN_ADDR":      "listen_addr",
	"GATEKEEPER_METRICS_ADDR":     "metrics_addr",
	"GATEKEEPER_LOG_FORMAT":       "log_format",
	"GATEKEEPER_SESSION_BACKEND":  "session_backend",
	"GATEKEEPER_STORE_BACKEND":    "store_backend",
	"GATEKEEPER_EXCLUDED_PATHS":   "excluded_paths",
	"GATEKEEPER_DB_HOST":          "database.host",
	"GATEKEEPER_DB_PORT":          "database.port",
	"GATEKEEPER_DB_USER":          "database.user",
	"GATEKEEPER_DB_PASSWORD":      "database.password",
	"GATEKEEPER_DB_NAME":          "database.name",
	"GATEKEEPER_DB_SSLMODE":       "database.sslmode",
	"GATEKEEPER_REDIS_ADDR":       "redis.addr",
	"GATEKEEPER_REDIS_PASSWORD":   "redis.password",
	"GATEKEEPER_REDIS_DB":         "redis.db",
	"GATEKEEPER_REDIS_KEY_PREFIX": "redis.prefix",
}

// RegisterFlags adds the command-line overrides to fs. Flag names are the
// config keys with dashes, e.g. --listen-addr for listen_addr.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("listen-addr", "", "API listen address")
	fs.String("metrics-addr", "", "metrics and health listen address")
	fs.String("log-format", "", "log format: json, text or kv")
	fs.String("auth-type", "", "credential verifier: none, basic or session")
	fs.String("session-name", "", "session cookie name")
	fs.String("session-backend", "", "session registry: memory, store or redis")
	fs.String("store-backend", "", "user store: memory or postgres")
	fs.StringSlice("excluded-paths", nil, "paths that never require credentials")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("redis-addr", "", "Redis address")
}

// flagKey maps a flag name to its config key. database-url and
// redis-addr live in nested sections.
func flagKey(name string) string {
	switch name {
	case "database-url":
		return "database.url"
	case "redis-addr":
		return "redis.addr"
	}
	return strings.ReplaceAll(name, "-", "_")
}

// Load builds a Config. path may be empty, in which case the XDG default
// file is read when it exists. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, v := range defaults() {
		if err := k.Set(key, v); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path == "" {
		if p, ok := xdg.DefaultConfigFile(); ok {
			path = p
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := loadEnv(k); err != nil {
		return nil, err
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnv(k *koanf.Koanf) error {
	for env, key := range envKeys {
		v, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		var val any = v
		switch key {
		case "excluded_paths":
			val = splitList(v)
		case "database.port", "redis.db":
			n, err := strconv.Atoi(v)
			if err != nil {
				return oops.Code("CONFIG_ENV_INVALID").With("variable", env).Wrap(err)
			}
			val = n
		}
		if err := k.Set(key, val); err != nil {
			return oops.Code("CONFIG_ENV_INVALID").With("variable", env).Wrap(err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects unknown enum values and incomplete backend settings.
func (c *Config) Validate() error {
	checks := []struct {
		key, value string
		allowed    []string
	}{
		{"auth_type", c.AuthType, []string{"none", "basic", "session"}},
		{"log_format", c.LogFormat, []string{"json", "text", "kv"}},
		{"session_backend", c.SessionBackend, []string{SessionMemory, SessionStore, SessionRedis}},
		{"store_backend", c.StoreBackend, []string{StoreMemory, StorePostgres}},
	}
	for _, ch := range checks {
		if !slices.Contains(ch.allowed, ch.value) {
			return oops.Code("CONFIG_INVALID").
				With("key", ch.key).
				With("value", ch.value).
				Errorf("%s must be one of %s", ch.key, strings.Join(ch.allowed, ", "))
		}
	}
	if c.SessionName == "" {
		return oops.Code("CONFIG_INVALID").With("key", "session_name").Errorf("session_name cannot be empty")
	}
	if c.SessionBackend == SessionRedis && c.Redis.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "redis.addr").Errorf("redis.addr is required for the redis session backend")
	}
	return nil
}

// DSN returns the PostgreSQL connection URL.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}
	if d.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(d.SSLMode)
	}
	return u.String()
}

// String renders the config without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("listen=%s metrics=%s auth=%s sessions=%s store=%s",
		c.ListenAddr, c.MetricsAddr, c.AuthType, c.SessionBackend, c.StoreBackend)
}
