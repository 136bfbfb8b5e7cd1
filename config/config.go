// Package config loads process configuration from a YAML file, an optional
// .env file and IDENTITY_ prefixed environment variables, in that order of
// precedence from lowest to highest.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/notify/mailer"
	"github.com/goliatone/go-identity/permissions"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "IDENTITY_"

type Config struct {
	SigningKey         string        `yaml:"signing_key" env:"SIGNING_KEY"`
	PreviousSigningKey string        `yaml:"previous_signing_key" env:"PREVIOUS_SIGNING_KEY"`
	Issuer             string        `yaml:"issuer" env:"ISSUER"`
	Audience           []string      `yaml:"audience" env:"AUDIENCE" envSeparator:","`
	AccessTTL          time.Duration `yaml:"access_ttl" env:"ACCESS_TTL"`
	RefreshTTL         time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL"`
	LoginTTL           time.Duration `yaml:"login_ttl" env:"LOGIN_TTL"`
	PasswordResetTTL   time.Duration `yaml:"password_reset_ttl" env:"PASSWORD_RESET_TTL"`
	PinTTL             time.Duration `yaml:"pin_ttl" env:"PIN_TTL"`
	PasswordMinLength  int           `yaml:"password_min_length" env:"PASSWORD_MIN_LENGTH"`
	Hasher             string        `yaml:"hasher" env:"HASHER"`
	BcryptCost         int           `yaml:"bcrypt_cost" env:"BCRYPT_COST"`

	Impersonation Impersonation `yaml:"impersonation" envPrefix:"IMPERSONATION_"`
	Server        Server        `yaml:"server" envPrefix:"SERVER_"`
	Database      Database      `yaml:"database" envPrefix:"DATABASE_"`
	Redis         Redis         `yaml:"redis" envPrefix:"REDIS_"`
	NATS          NATS          `yaml:"nats" envPrefix:"NATS_"`
	SMTP          mailer.Config `yaml:"smtp"`
	Log           Log           `yaml:"log" envPrefix:"LOG_"`
	Metrics       Metrics       `yaml:"metrics" envPrefix:"METRICS_"`
}

// Impersonation configures the switch-user policy. With mode "permission"
// the caller needs Scope, and every listed action in it when Actions is set.
type Impersonation struct {
	Mode    string   `yaml:"mode" env:"MODE"`
	Scope   string   `yaml:"scope" env:"SCOPE"`
	Actions []string `yaml:"actions" env:"ACTIONS" envSeparator:","`
}

type Server struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type Database struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type NATS struct {
	URL             string `yaml:"url" env:"URL"`
	ActivitySubject string `yaml:"activity_subject" env:"ACTIVITY_SUBJECT"`
}

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Hasher:        "bcrypt",
		BcryptCost:    identity.DefaultBcryptCost,
		Impersonation: Impersonation{Mode: string(identity.ImpersonationDisabled)},
		Server:        Server{Addr: ":8080"},
		Database:      Database{Driver: "sqlite", DSN: "file:identity.db?cache=shared"},
		SMTP:          mailer.Config{Port: mailer.DefaultPort},
		Log:           Log{Level: "info", Format: "json"},
		Metrics:       Metrics{Path: "/metrics"},
	}
}

// Load reads path (optional), then envFile (optional), then the process
// environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to load env file").
				WithMetadata(map[string]any{"path": envFile})
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment")
	}

	return cfg, nil
}

// Identity builds the engine configuration and validates it.
func (c *Config) Identity() (identity.Config, error) {
	out := identity.Config{
		SigningKey:        []byte(c.SigningKey),
		Issuer:            c.Issuer,
		Audience:          c.Audience,
		AccessTTL:         c.AccessTTL,
		RefreshTTL:        c.RefreshTTL,
		LoginTTL:          c.LoginTTL,
		PasswordResetTTL:  c.PasswordResetTTL,
		PinTTL:            c.PinTTL,
		PasswordMinLength: c.PasswordMinLength,
		Impersonation:     c.Impersonation.Policy(),
	}.WithDefaults()

	if err := out.Validate(); err != nil {
		return identity.Config{}, err
	}
	return out, nil
}

// PreviousIdentity returns the engine configuration for tokens signed with
// the previous key, or false when no key rotation is in progress.
func (c *Config) PreviousIdentity() (identity.Config, bool) {
	if c.PreviousSigningKey == "" {
		return identity.Config{}, false
	}
	prev := *c
	prev.SigningKey = c.PreviousSigningKey
	prev.PreviousSigningKey = ""
	out, err := prev.Identity()
	if err != nil {
		return identity.Config{}, false
	}
	return out, true
}

// Policy converts the configured mode into an identity.ImpersonationPolicy.
func (i Impersonation) Policy() identity.ImpersonationPolicy {
	policy := identity.ImpersonationPolicy{
		Mode: identity.ImpersonationMode(strings.ToLower(strings.TrimSpace(i.Mode))),
	}
	if policy.Mode == identity.ImpersonationPermission && i.Scope != "" {
		if len(i.Actions) > 0 {
			policy.Requirement = permissions.Require(i.Scope, i.Actions...)
		} else {
			policy.Requirement = permissions.Scope(i.Scope)
		}
	}
	return policy
}

// NewHasher returns the configured password hasher.
func (c *Config) NewHasher() identity.Hasher {
	if strings.EqualFold(c.Hasher, "argon2") {
		return identity.NewArgon2Hasher()
	}
	return identity.NewBcryptHasher(c.BcryptCost)
}
