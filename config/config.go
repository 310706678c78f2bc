// Package config loads process settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"hireflow/agreement"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	NotifyLog    = "log"
	NotifyOutbox = "outbox"
	NotifyRedis  = "redis"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Port            string
	DatabaseURL     string
	JWTSecret       string
	LogLevel        slog.Level
	StoreBackend    string
	NotifyBackends  []string
	RedisURL        string
	RedisChannel    string
	PaymentMethod   string
	SettlementDelay time.Duration
	RelayInterval   time.Duration
	TermDefaults    agreement.Defaults
}

// Load reads .env files (missing files are ignored) and then the process
// environment. Variables already set in the environment win over .env.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := Config{
		Port:          get("PORT", "8080"),
		DatabaseURL:   get("DATABASE_URL", ""),
		JWTSecret:     get("JWT_SECRET", ""),
		StoreBackend:  strings.ToLower(get("STORE_BACKEND", BackendPostgres)),
		RedisURL:      get("REDIS_URL", ""),
		RedisChannel:  get("REDIS_CHANNEL", "hireflow.notifications"),
		PaymentMethod: get("PAYMENT_METHOD", "bank_transfer"),
		TermDefaults:  agreement.DefaultTerms(),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("%w: LOG_LEVEL: %v", ErrInvalid, err)
	}

	var err error
	if cfg.SettlementDelay, err = duration(get("SETTLEMENT_DELAY", "0s")); err != nil {
		return Config{}, fmt.Errorf("%w: SETTLEMENT_DELAY: %v", ErrInvalid, err)
	}
	if cfg.RelayInterval, err = duration(get("OUTBOX_RELAY_INTERVAL", "2s")); err != nil {
		return Config{}, fmt.Errorf("%w: OUTBOX_RELAY_INTERVAL: %v", ErrInvalid, err)
	}

	for _, b := range strings.Split(get("NOTIFY_BACKENDS", NotifyLog), ",") {
		b = strings.ToLower(strings.TrimSpace(b))
		switch b {
		case "":
			continue
		case NotifyLog, NotifyOutbox, NotifyRedis:
			cfg.NotifyBackends = append(cfg.NotifyBackends, b)
		default:
			return Config{}, fmt.Errorf("%w: unknown notify backend %q", ErrInvalid, b)
		}
	}

	if path := get("TERM_DEFAULTS_FILE", ""); path != "" {
		if cfg.TermDefaults, err = LoadTermDefaults(path, cfg.TermDefaults); err != nil {
			return Config{}, err
		}
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres backend", ErrInvalid)
		}
	case BackendMemory:
		if c.Notifies(NotifyOutbox) {
			return fmt.Errorf("%w: the outbox notifier needs the postgres backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalid, c.StoreBackend)
	}
	if c.RelayInterval <= 0 {
		return fmt.Errorf("%w: OUTBOX_RELAY_INTERVAL must be positive", ErrInvalid)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required", ErrInvalid)
	}
	if c.Notifies(NotifyRedis) && c.RedisURL == "" {
		return fmt.Errorf("%w: REDIS_URL is required for the redis notifier", ErrInvalid)
	}
	return nil
}

// Notifies reports whether backend is enabled.
func (c Config) Notifies(backend string) bool {
	for _, b := range c.NotifyBackends {
		if b == backend {
			return true
		}
	}
	return false
}

// LoadTermDefaults overlays the YAML file at path onto base.
func LoadTermDefaults(path string, base agreement.Defaults) (agreement.Defaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("config: read term defaults: %w", err)
	}
	return ParseTermDefaults(raw, base)
}

func ParseTermDefaults(raw []byte, base agreement.Defaults) (agreement.Defaults, error) {
	var override agreement.Defaults
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return base, fmt.Errorf("%w: term defaults: %v", ErrInvalid, err)
	}
	if override.PaymentType != "" && base.Merge(override).PaymentType != override.PaymentType {
		return base, fmt.Errorf("%w: unknown payment_type %q", ErrInvalid, override.PaymentType)
	}
	return base.Merge(override), nil
}

func duration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %s", v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", v)
	}
	return d, nil
}
