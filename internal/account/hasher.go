// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// SecretHasher turns plaintext passwords into storable secrets.
//
// Stored secrets are salted with a slow, memory-hard function rather than a
// single fast digest. Hash output embeds every parameter Verify needs.
type SecretHasher interface {
	// Hash produces a one-way secret hash of plaintext.
	Hash(plaintext string) (string, error)

	// Verify reports whether plaintext matches secretHash. The comparison is
	// constant time. Malformed hashes yield false, never an error, so a corrupt
	// record is indistinguishable from a wrong password.
	Verify(plaintext, secretHash string) bool
}

// Argon2Params are the argon2id work factors.
type Argon2Params struct {
	Time       uint32 `koanf:"time" yaml:"time" json:"time"`
	Memory     uint32 `koanf:"memory" yaml:"memory" json:"memory"` // KiB
	Threads    uint8  `koanf:"threads" yaml:"threads" json:"threads"`
	SaltLength uint32 `koanf:"salt_length" yaml:"salt_length" json:"salt_length"`
	KeyLength  uint32 `koanf:"key_length" yaml:"key_length" json:"key_length"`
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:       1,
		Memory:     64 * 1024,
		Threads:    4,
		SaltLength: 16,
		KeyLength:  32,
	}
}

const argon2idPrefix = "$argon2id$"

// dummySecretHash is verified when a lookup misses so that unknown emails
// cost the same as wrong passwords. It never matches any password.
//
//nolint:gosec // G101: not a credential.
const dummySecretHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Argon2idHasher implements SecretHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom parameters.
func NewArgon2idHasherWithParams(p Argon2Params) (*Argon2idHasher, error) {
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return nil, oops.Code("ARGON2_INVALID_PARAMS").
			With("time", p.Time).
			With("memory", p.Memory).
			With("threads", p.Threads).
			Errorf("argon2id time, memory and threads must be positive")
	}
	if p.SaltLength < 8 || p.KeyLength < 16 {
		return nil, oops.Code("ARGON2_INVALID_PARAMS").
			With("salt_length", p.SaltLength).
			With("key_length", p.KeyLength).
			Errorf("argon2id salt must be at least 8 bytes and key at least 16 bytes")
	}
	return &Argon2idHasher{params: p}, nil
}

// Hash produces a PHC-formatted argon2id hash:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code(CodeHashFailed).With("operation", "generate salt").Wrap(err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks plaintext against an argon2id PHC string.
func (h *Argon2idHasher) Verify(plaintext, secretHash string) bool {
	decoded, err := decodeArgon2id(secretHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(plaintext), decoded.salt, decoded.time, decoded.memory, decoded.threads, uint32(len(decoded.key)))
	return subtle.ConstantTimeCompare(computed, decoded.key) == 1
}

type argon2idHash struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	key     []byte
}

// maxArgon2Memory caps the memory parameter accepted from stored hashes
// (4 GiB in KiB) so a corrupt record cannot exhaust the host.
const maxArgon2Memory = 4 * 1024 * 1024

var errMalformedHash = errors.New("malformed secret hash")

func decodeArgon2id(encoded string) (*argon2idHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errMalformedHash
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, errMalformedHash
	}
	if time == 0 || memory == 0 || memory > maxArgon2Memory || threads == 0 || threads > 255 {
		return nil, errMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, errMalformedHash
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1024 {
		return nil, errMalformedHash
	}

	return &argon2idHash{
		time:    time,
		memory:  memory,
		threads: uint8(threads),
		salt:    salt,
		key:     key,
	}, nil
}

// InputLimiter is implemented by hashers that cannot accept arbitrarily long
// plaintexts. Zero means no limit.
type InputLimiter interface {
	MaxInputBytes() int
}

const bcryptMaxInputBytes = 72

// BcryptHasher implements SecretHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. A zero cost selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("BCRYPT_INVALID_COST").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash produces a bcrypt hash. bcrypt only reads the first 72 bytes, so
// longer passwords are rejected instead of silently truncated.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", oops.Code(CodeHashFailed).With("algorithm", "bcrypt").Wrap(err)
	}
	return string(out), nil
}

// MaxInputBytes reports the longest plaintext bcrypt accepts.
func (h *BcryptHasher) MaxInputBytes() int {
	return bcryptMaxInputBytes
}

// Verify checks plaintext against a bcrypt hash.
func (h *BcryptHasher) Verify(plaintext, secretHash string) bool {
	if !isBcryptHash(secretHash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(plaintext)) == nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// MultiHasher hashes with a primary algorithm and verifies hashes produced by
// any of the known algorithms, chosen by the hash prefix.
type MultiHasher struct {
	primary SecretHasher
	argon2  *Argon2idHasher
	bcrypt  *BcryptHasher
}

// NewMultiHasher creates a MultiHasher. primary must be one of argon2 or bcrypt.
// Nil verifiers fall back to default parameters; verification reads the work
// factors from the stored hash, so those defaults only matter for hashing.
func NewMultiHasher(primary SecretHasher, a2 *Argon2idHasher, bc *BcryptHasher) (*MultiHasher, error) {
	if primary == nil {
		return nil, oops.Code("HASHER_INVALID").Errorf("primary hasher is required")
	}
	if a2 == nil {
		a2 = NewArgon2idHasher()
	}
	if bc == nil {
		bc = &BcryptHasher{cost: bcrypt.DefaultCost}
	}
	return &MultiHasher{primary: primary, argon2: a2, bcrypt: bc}, nil
}

// Hash hashes with the primary algorithm.
func (h *MultiHasher) Hash(plaintext string) (string, error) {
	return h.primary.Hash(plaintext)
}

// MaxInputBytes reports the primary hasher's limit.
func (h *MultiHasher) MaxInputBytes() int {
	if l, ok := h.primary.(InputLimiter); ok {
		return l.MaxInputBytes()
	}
	return 0
}

// Verify dispatches on the stored hash's algorithm prefix.
func (h *MultiHasher) Verify(plaintext, secretHash string) bool {
	switch {
	case strings.HasPrefix(secretHash, argon2idPrefix):
		return h.argon2.Verify(plaintext, secretHash)
	case isBcryptHash(secretHash):
		return h.bcrypt.Verify(plaintext, secretHash)
	default:
		return false
	}
}
