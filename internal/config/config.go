// Package config loads server configuration.
//
// Values come from three layers, each overriding the previous one: built-in
// defaults, an optional YAML file (--config flag or TASKBOARD_CONFIG) and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendTable  = "table"
)

type Config struct {
	ListenAddr string        `yaml:"listen_addr"`
	Debug      bool          `yaml:"debug"`
	SeedDemo   bool          `yaml:"seed_demo"`
	Storage    StorageConfig `yaml:"storage"`
	Auth       AuthConfig    `yaml:"auth"`
}

type StorageConfig struct {
	// Backend is one of memory, redis or table.
	Backend string `yaml:"backend"`

	// RedisConnectionString accepts a redis:// URL or the
	// "host:port,password=...,ssl=True" form. With the table backend it
	// enables the read-through cache.
	RedisConnectionString string `yaml:"redis_connection_string"`
	KeyPrefix             string `yaml:"key_prefix"`

	// ConnectionString is the Azure Storage connection string.
	ConnectionString string `yaml:"connection_string"`
	StateTable       string `yaml:"state_table"`
	Partition        string `yaml:"partition"`

	// ActivityQueue, when set, receives a copy of every activity entry.
	ActivityQueue string `yaml:"activity_queue"`

	CacheTTL    time.Duration `yaml:"cache_ttl"`
	SaveTimeout time.Duration `yaml:"save_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`

	// JWKSURL enables RS256 tokens from an external identity provider.
	JWKSURL string `yaml:"jwks_url"`
}

// Default returns the configuration used before any file or environment
// variable is applied.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		SeedDemo:   true,
		Storage: StorageConfig{
			Backend:     BackendMemory,
			KeyPrefix:   "taskboard",
			StateTable:  "TaskboardState",
			Partition:   "taskboard",
			CacheTTL:    5 * time.Minute,
			SaveTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			Issuer:   "taskboard",
		},
	}
}

// Load builds the configuration from command-line args and the environment.
// getenv is usually os.Getenv.
func Load(name string, args []string, getenv func(string) string) (*Config, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	path := fs.String("config", "", "path to a YAML config file")
	listen := fs.String("listen", "", "listen address, overrides LISTEN_ADDR")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *path == "" {
		*path = getenv("TASKBOARD_CONFIG")
	}
	if *path != "" {
		if err := cfg.loadFile(*path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", *path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"LISTEN_ADDR":               &c.ListenAddr,
		"STORAGE_BACKEND":           &c.Storage.Backend,
		"REDIS_CONNECTION_STRING":   &c.Storage.RedisConnectionString,
		"STORAGE_CONNECTION_STRING": &c.Storage.ConnectionString,
		"STATE_TABLE":               &c.Storage.StateTable,
		"ACTIVITY_QUEUE":            &c.Storage.ActivityQueue,
		"JWT_SECRET":                &c.Auth.JWTSecret,
		"AUTH_ISSUER":               &c.Auth.Issuer,
		"AUTH_AUDIENCE":             &c.Auth.Audience,
		"AUTH_JWKS_URL":             &c.Auth.JWKSURL,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"CACHE_TTL": &c.Storage.CacheTTL,
		"TOKEN_TTL": &c.Auth.TokenTTL,
	}
	for key, dst := range durations {
		v := getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = d
	}

	bools := map[string]*bool{
		"SEED_DEMO": &c.SeedDemo,
		"DEBUG":     &c.Debug,
	}
	for key, dst := range bools {
		v := getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = b
	}
	return nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.RedisConnectionString == "" {
			errs = append(errs, errors.New("redis backend requires REDIS_CONNECTION_STRING"))
		}
	case BackendTable:
		if c.Storage.ConnectionString == "" {
			errs = append(errs, errors.New("table backend requires STORAGE_CONNECTION_STRING"))
		}
		if c.Storage.StateTable == "" {
			errs = append(errs, errors.New("table backend requires STATE_TABLE"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend: %q", c.Storage.Backend))
	}
	if c.Storage.ActivityQueue != "" && c.Storage.ConnectionString == "" {
		errs = append(errs, errors.New("ACTIVITY_QUEUE requires STORAGE_CONNECTION_STRING"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	return errors.Join(errs...)
}
