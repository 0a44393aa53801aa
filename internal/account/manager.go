// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/accountd/pkg/errutil"
)

// Operation names used for spans, logs and metrics.
const (
	OpRegister      = "register"
	OpActivate      = "activate"
	OpAuthenticate  = "authenticate"
	OpResetPassword = "reset_password"
)

// OutcomeOK is the metrics outcome of a successful operation. Failed
// operations report their error code.
const OutcomeOK = "ok"

// DefaultRetryBackoff is the pause before the single retry that follows a
// concurrent modification.
const DefaultRetryBackoff = 10 * time.Millisecond

const tracerName = "github.com/holomush/accountd/internal/account"

// ActivationPolicy selects how ActivateUser treats an already active account.
type ActivationPolicy string

const (
	// ActivationStrict fails with ALREADY_ACTIVE. This is the default.
	ActivationStrict ActivationPolicy = "strict"

	// ActivationIdempotent treats re-activation as a successful no-op.
	// The stored activation timestamp is never rewritten either way.
	ActivationIdempotent ActivationPolicy = "idempotent"
)

// Recorder observes the outcome of lifecycle operations.
type Recorder interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string, time.Duration) {}

// Manager runs the credential lifecycle: registration, activation,
// authentication and password reset. It keeps no state between calls and
// is safe for concurrent use; atomicity comes from the CredentialStore.
type Manager struct {
	store        CredentialStore
	hasher       SecretHasher
	policy       PasswordPolicy
	logger       *slog.Logger
	now          func() time.Time
	metrics      Recorder
	activation   ActivationPolicy
	maskUnknown  bool
	retryBackoff time.Duration
	tracer       trace.Tracer
}

// Option customizes a Manager.
type Option func(*Manager)

// WithPasswordPolicy overrides DefaultPasswordPolicy.
func WithPasswordPolicy(p PasswordPolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithLogger sets the structured logger. A nil logger is rejected by NewManager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock injects the time source used for registration and activation
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics sets the operation recorder.
func WithMetrics(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithActivationPolicy sets how re-activation is handled.
func WithActivationPolicy(p ActivationPolicy) Option {
	return func(m *Manager) {
		m.activation = p
	}
}

// WithUnknownUserMasking makes Authenticate report INVALID_CREDENTIALS
// instead of USER_NOT_FOUND, hiding which emails are registered.
func WithUnknownUserMasking(enabled bool) Option {
	return func(m *Manager) {
		m.maskUnknown = enabled
	}
}

// WithRetryBackoff sets the pause before retrying a concurrent modification.
func WithRetryBackoff(d time.Duration) Option {
	return func(m *Manager) {
		m.retryBackoff = d
	}
}

// NewManager creates a Manager over the given store and hasher.
func NewManager(store CredentialStore, hasher SecretHasher, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("secret hasher is required")
	}

	m := &Manager{
		store:        store,
		hasher:       hasher,
		policy:       DefaultPasswordPolicy(),
		logger:       slog.Default(),
		now:          time.Now,
		metrics:      noopRecorder{},
		activation:   ActivationStrict,
		retryBackoff: DefaultRetryBackoff,
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.logger == nil {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").Errorf("logger is required")
	}
	if m.policy.MinLength < 1 {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").
			With("min_length", m.policy.MinLength).
			Errorf("password policy min length must be positive")
	}
	if m.activation != ActivationStrict && m.activation != ActivationIdempotent {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").
			With("activation_policy", string(m.activation)).
			Errorf("unknown activation policy")
	}
	if m.retryBackoff <= 0 {
		return nil, oops.Code("ACCOUNT_INVALID_CONFIG").
			With("retry_backoff", m.retryBackoff.String()).
			Errorf("retry backoff must be positive")
	}

	return m, nil
}

// Register validates the email and password, hashes the password and creates
// a pending record. Input errors never reach the store.
func (m *Manager) Register(ctx context.Context, email, password string) (id ulid.ULID, err error) {
	email = NormalizeEmail(email)
	ctx, done := m.begin(ctx, OpRegister, email)
	defer func() { done(err) }()

	if err := ValidateEmail(email); err != nil {
		return ulid.ULID{}, err
	}
	if err := m.validatePassword(password); err != nil {
		return ulid.ULID{}, err
	}

	secretHash, err := m.hash(password)
	if err != nil {
		return ulid.ULID{}, err
	}

	id, err = m.store.Create(ctx, email, secretHash, m.now().UTC())
	if err != nil {
		return ulid.ULID{}, storeError(err, "create", email)
	}
	return id, nil
}

// ActivateUser moves a pending record to active. Activation is one-way; an
// active record yields ALREADY_ACTIVE unless the idempotent policy is set, and
// its activation timestamp is never rewritten.
func (m *Manager) ActivateUser(ctx context.Context, email string) (err error) {
	email = NormalizeEmail(email)
	ctx, done := m.begin(ctx, OpActivate, email)
	defer func() { done(err) }()

	if err := ValidateEmail(email); err != nil {
		return err
	}

	return m.withRetry(ctx, OpActivate, email, func(ctx context.Context) error {
		rec, err := m.store.FindByEmail(ctx, email)
		if err != nil {
			return storeError(err, "find_by_email", email)
		}

		if rec.IsActive {
			if m.activation == ActivationIdempotent {
				return nil
			}
			return oops.Code(CodeAlreadyActive).
				With("email", email).
				With("id", rec.ID.String()).
				Wrap(ErrAlreadyActive)
		}

		activatedAt := m.now().UTC()
		if activatedAt.Before(rec.RegisteredAt) {
			activatedAt = rec.RegisteredAt
		}

		err = m.store.Update(ctx, rec.ID, Mutation{
			ExpectedVersion: rec.Version,
			ActivatedAt:     &activatedAt,
		})
		if err != nil {
			return storeError(err, "activate", email)
		}
		return nil
	})
}

// Authenticate verifies password against the stored secret and returns the
// record on success. Pending accounts never authenticate, whatever the
// password. Nothing is written to the store.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (rec *UserRecord, err error) {
	email = NormalizeEmail(email)
	ctx, done := m.begin(ctx, OpAuthenticate, email)
	defer func() { done(err) }()

	rec, lookupErr := m.store.FindByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, storeError(lookupErr, "find_by_email", email)
	}

	// Always run one verification so unknown emails cost the same as known ones.
	target := dummySecretHash
	if lookupErr == nil {
		target = rec.SecretHash
	}
	matched := m.hasher.Verify(password, target)

	switch {
	case lookupErr != nil:
		if m.maskUnknown {
			return nil, oops.Code(CodeInvalidCredentials).
				With("email", email).
				Wrap(ErrInvalidCredentials)
		}
		return nil, storeError(lookupErr, "find_by_email", email)
	case !rec.IsActive:
		return nil, oops.Code(CodeAccountNotActive).
			With("email", email).
			With("id", rec.ID.String()).
			Wrap(ErrAccountNotActive)
	case !matched:
		return nil, oops.Code(CodeInvalidCredentials).
			With("email", email).
			Wrap(ErrInvalidCredentials)
	}

	return rec.Clone(), nil
}

// ResetPassword replaces the secret hash of the record with the given email.
// The lifecycle state is unchanged. The caller is expected to have authorized
// the reset out of band; the old password is not required.
func (m *Manager) ResetPassword(ctx context.Context, email, newPassword string) (err error) {
	email = NormalizeEmail(email)
	ctx, done := m.begin(ctx, OpResetPassword, email)
	defer func() { done(err) }()

	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := m.validatePassword(newPassword); err != nil {
		return err
	}

	var secretHash string
	return m.withRetry(ctx, OpResetPassword, email, func(ctx context.Context) error {
		rec, err := m.store.FindByEmail(ctx, email)
		if err != nil {
			return storeError(err, "find_by_email", email)
		}

		if secretHash == "" {
			if secretHash, err = m.hash(newPassword); err != nil {
				return err
			}
		}

		newHash := secretHash
		err = m.store.Update(ctx, rec.ID, Mutation{
			ExpectedVersion: rec.Version,
			SecretHash:      &newHash,
		})
		if err != nil {
			return storeError(err, "update_secret", email)
		}
		return nil
	})
}

// validatePassword applies the policy and the hasher's input limit.
func (m *Manager) validatePassword(password string) error {
	if err := m.policy.Validate(password); err != nil {
		return err
	}
	if l, ok := m.hasher.(InputLimiter); ok {
		if n := l.MaxInputBytes(); n > 0 && len(password) > n {
			return oops.Code(CodeWeakPassword).
				With("rule", "max_length").
				With("max_bytes", n).
				Wrapf(ErrWeakPassword, "password must be at most %d bytes long", n)
		}
	}
	return nil
}

func (m *Manager) hash(password string) (string, error) {
	secretHash, err := m.hasher.Hash(password)
	if err != nil {
		return "", oops.Code(CodeHashFailed).With("operation", "hash").Wrap(err)
	}
	if secretHash == "" || secretHash == password {
		return "", oops.Code(CodeHashFailed).Errorf("hasher returned an unusable secret")
	}
	return secretHash, nil
}

// withRetry runs fn and retries it once when it fails with a concurrent
// modification. The second conflict is returned to the caller.
func (m *Manager) withRetry(ctx context.Context, operation, email string, fn retry.RetryFunc) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(m.retryBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrConcurrentModification) {
			m.logger.DebugContext(ctx, "concurrent modification, retrying",
				"operation", operation,
				"email", email)
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if _, ok := oops.AsOops(err); !ok {
		return storeError(err, operation, email)
	}
	return err
}

// begin opens a span and returns a function that closes it and records the
// outcome in logs and metrics.
func (m *Manager) begin(ctx context.Context, operation, email string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "account."+operation,
		trace.WithAttributes(attribute.String("account.operation", operation)))

	return ctx, func(err error) {
		defer span.End()

		outcome := OutcomeOK
		if err != nil {
			outcome = errutil.Code(err)
			if outcome == "" {
				outcome = "UNKNOWN"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("account.outcome", outcome))
		m.metrics.ObserveOperation(operation, outcome, time.Since(start))

		switch {
		case err == nil && operation == OpAuthenticate:
			m.logger.DebugContext(ctx, "account authenticated", "email", email)
		case err == nil:
			m.logger.InfoContext(ctx, "account operation completed",
				"operation", operation,
				"email", email)
		case isInfrastructureFailure(outcome):
			errutil.LogErrorContext(ctx, m.logger, "account operation failed", err,
				"operation", operation,
				"email", email)
		default:
			m.logger.WarnContext(ctx, "account operation rejected",
				"operation", operation,
				"email", email,
				"code", outcome)
		}
	}
}

func isInfrastructureFailure(code string) bool {
	switch code {
	case CodeStoreUnavailable, CodeHashFailed, "UNKNOWN":
		return true
	}
	return false
}

// storeError classifies a CredentialStore error into the operation's error code.
func storeError(err error, operation, email string) error {
	b := oops.With("operation", operation).With("email", email)
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return b.Code(CodeDuplicateEmail).Wrap(err)
	case errors.Is(err, ErrNotFound):
		return b.Code(CodeUserNotFound).Wrap(err)
	case errors.Is(err, ErrConcurrentModification):
		return b.Code(CodeConcurrentModification).Wrap(err)
	default:
		return b.Code(CodeStoreUnavailable).Wrap(err)
	}
}
