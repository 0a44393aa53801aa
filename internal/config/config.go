// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads accountd configuration from defaults, an optional
// YAML file, the environment and command-line flags.
package config

import (
	"errors"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/xdg"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Hash algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// bcrypt cost bounds, mirrored from golang.org/x/crypto/bcrypt.
const (
	minBcryptCost = 4
	maxBcryptCost = 31
)

// Config is the complete accountd configuration.
type Config struct {
	Log       LogConfig       `koanf:"log" yaml:"log" json:"log,omitempty"`
	Database  DatabaseConfig  `koanf:"database" yaml:"database" json:"database,omitempty"`
	Password  PasswordConfig  `koanf:"password" yaml:"password" json:"password,omitempty"`
	Hasher    HasherConfig    `koanf:"hasher" yaml:"hasher" json:"hasher,omitempty"`
	Lifecycle LifecycleConfig `koanf:"lifecycle" yaml:"lifecycle" json:"lifecycle,omitempty"`
	HTTP      HTTPConfig      `koanf:"http" yaml:"http" json:"http,omitempty"`
	Metrics   MetricsConfig   `koanf:"metrics" yaml:"metrics" json:"metrics,omitempty"`
}

// LogConfig selects the log format and minimum level.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DatabaseConfig selects the credential store.
type DatabaseConfig struct {
	Driver string `koanf:"driver" yaml:"driver" json:"driver,omitempty" jsonschema:"enum=postgres,enum=sqlite,enum=memory"`
	// URL is the PostgreSQL connection string.
	URL string `koanf:"url" yaml:"url" json:"url,omitempty"`
	// Path is the SQLite database file.
	Path string `koanf:"path" yaml:"path" json:"path,omitempty"`
}

// PasswordConfig is the password complexity policy.
type PasswordConfig = account.PasswordPolicy

// HasherConfig selects and tunes the secret hasher.
type HasherConfig struct {
	Algorithm  string               `koanf:"algorithm" yaml:"algorithm" json:"algorithm,omitempty" jsonschema:"enum=argon2id,enum=bcrypt"`
	Argon2     account.Argon2Params `koanf:"argon2" yaml:"argon2" json:"argon2,omitempty"`
	BcryptCost int                  `koanf:"bcrypt_cost" yaml:"bcrypt_cost" json:"bcrypt_cost,omitempty" jsonschema:"minimum=4,maximum=31"`
}

// LifecycleConfig tunes the lifecycle manager.
type LifecycleConfig struct {
	ActivationPolicy string `koanf:"activation_policy" yaml:"activation_policy" json:"activation_policy,omitempty" jsonschema:"enum=strict,enum=idempotent"`
	MaskUnknownUser  bool   `koanf:"mask_unknown_user" yaml:"mask_unknown_user" json:"mask_unknown_user,omitempty"`
	// RetryBackoff is a Go duration string such as "10ms".
	RetryBackoff string `koanf:"retry_backoff" yaml:"retry_backoff" json:"retry_backoff,omitempty"`
}

// HTTPConfig configures the HTTP API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr" json:"addr,omitempty"`
}

// MetricsConfig configures the metrics and health listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" json:"addr,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join(xdg.DataDir(), "accounts.db"),
		},
		Password: account.DefaultPasswordPolicy(),
		Hasher: HasherConfig{
			Algorithm:  AlgorithmArgon2id,
			Argon2:     account.DefaultArgon2Params(),
			BcryptCost: 12,
		},
		Lifecycle: LifecycleConfig{
			ActivationPolicy: string(account.ActivationStrict),
			RetryBackoff:     account.DefaultRetryBackoff.String(),
		},
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8080"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
	}
}

// Validate checks every section and returns CONFIG_INVALID with the failing
// fields on error.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Log),
		validation.Field(&c.Database),
		validation.Field(&c.Password, validation.By(validatePolicy)),
		validation.Field(&c.Hasher),
		validation.Field(&c.Lifecycle),
		validation.Field(&c.HTTP),
	)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrapf(err, "invalid configuration")
	}
	return nil
}

// Validate checks the log section.
func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Format, validation.Required, validation.In("json", "text")),
		validation.Field(&l.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
	)
}

// Validate checks the database section. PostgreSQL needs a URL and SQLite
// needs a path.
func (d DatabaseConfig) Validate() error {
	urlRules := []validation.Rule{}
	pathRules := []validation.Rule{}
	switch d.Driver {
	case DriverPostgres:
		urlRules = append(urlRules, validation.Required)
	case DriverSQLite:
		pathRules = append(pathRules, validation.Required)
	}
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(DriverPostgres, DriverSQLite, DriverMemory)),
		validation.Field(&d.URL, urlRules...),
		validation.Field(&d.Path, pathRules...),
	)
}

func validatePolicy(value any) error {
	p, ok := value.(account.PasswordPolicy)
	if !ok {
		return nil
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.MinLength, validation.Required, validation.Min(1)),
	)
}

// Validate checks the hasher section.
func (h HasherConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Algorithm, validation.Required, validation.In(AlgorithmArgon2id, AlgorithmBcrypt)),
		validation.Field(&h.Argon2, validation.By(validateArgon2)),
		validation.Field(&h.BcryptCost, validation.Min(minBcryptCost), validation.Max(maxBcryptCost)),
	)
}

func validateArgon2(value any) error {
	p, ok := value.(account.Argon2Params)
	if !ok {
		return nil
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.Time, validation.Required, validation.Min(uint32(1))),
		validation.Field(&p.Memory, validation.Required, validation.Min(uint32(8))),
		validation.Field(&p.Threads, validation.Required, validation.Min(uint8(1))),
		validation.Field(&p.SaltLength, validation.Required, validation.Min(uint32(8))),
		validation.Field(&p.KeyLength, validation.Required, validation.Min(uint32(16))),
	)
}

// Validate checks the lifecycle section.
func (l LifecycleConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.ActivationPolicy, validation.Required,
			validation.In(string(account.ActivationStrict), string(account.ActivationIdempotent))),
		validation.Field(&l.RetryBackoff, validation.Required, validation.By(positiveDuration)),
	)
}

// Validate checks the HTTP section.
func (h HTTPConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Addr, validation.Required),
	)
}

func positiveDuration(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("must be a duration such as 10ms")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

// Backoff returns the parsed retry backoff. Call after Validate.
func (l LifecycleConfig) Backoff() time.Duration {
	d, err := time.ParseDuration(l.RetryBackoff)
	if err != nil || d <= 0 {
		return account.DefaultRetryBackoff
	}
	return d
}
