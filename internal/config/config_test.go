// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/pkg/errutil"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, AlgorithmArgon2id, cfg.Hasher.Algorithm)
	assert.Equal(t, account.DefaultPasswordPolicy(), cfg.Password)
	assert.Equal(t, account.DefaultRetryBackoff, cfg.Lifecycle.Backoff())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "format"},
		{"unknown log level", func(c *Config) { c.Log.Level = "trace" }, "level"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "driver"},
		{"postgres without url", func(c *Config) { c.Database.Driver = DriverPostgres }, "url"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "path"},
		{"zero min length", func(c *Config) { c.Password.MinLength = 0 }, "min_length"},
		{"unknown algorithm", func(c *Config) { c.Hasher.Algorithm = "md5" }, "algorithm"},
		{"bcrypt cost too low", func(c *Config) { c.Hasher.BcryptCost = 3 }, "bcrypt_cost"},
		{"bcrypt cost too high", func(c *Config) { c.Hasher.BcryptCost = 32 }, "bcrypt_cost"},
		{"argon2 zero threads", func(c *Config) { c.Hasher.Argon2.Threads = 0 }, "threads"},
		{"argon2 zero time", func(c *Config) { c.Hasher.Argon2.Time = 0 }, "time"},
		{"argon2 zero memory", func(c *Config) { c.Hasher.Argon2.Memory = 0 }, "memory"},
		{"argon2 zero key length", func(c *Config) { c.Hasher.Argon2.KeyLength = 0 }, "key_length"},
		{"argon2 zero salt length", func(c *Config) { c.Hasher.Argon2.SaltLength = 0 }, "salt_length"},
		{"argon2 short salt", func(c *Config) { c.Hasher.Argon2.SaltLength = 4 }, "salt_length"},
		{"unknown activation policy", func(c *Config) { c.Lifecycle.ActivationPolicy = "lenient" }, "activation_policy"},
		{"unparseable backoff", func(c *Config) { c.Lifecycle.RetryBackoff = "soon" }, "retry_backoff"},
		{"negative backoff", func(c *Config) { c.Lifecycle.RetryBackoff = "-5ms" }, "retry_backoff"},
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }, "addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_Validate_AcceptsAlternatives(t *testing.T) {
	cfg := Default()
	cfg.Database = DatabaseConfig{Driver: DriverPostgres, URL: "postgres://localhost/accounts"}
	cfg.Hasher.Algorithm = AlgorithmBcrypt
	cfg.Lifecycle.ActivationPolicy = string(account.ActivationIdempotent)
	cfg.Metrics.Addr = ""

	assert.NoError(t, cfg.Validate())

	cfg.Database = DatabaseConfig{Driver: DriverMemory}
	assert.NoError(t, cfg.Validate())
}

func TestLifecycleConfig_Backoff(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, LifecycleConfig{RetryBackoff: "250ms"}.Backoff())
	assert.Equal(t, account.DefaultRetryBackoff, LifecycleConfig{RetryBackoff: "bogus"}.Backoff())
}
