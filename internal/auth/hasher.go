// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params control the cost of argon2id derivation.
type Argon2Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params are the OWASP-recommended argon2id parameters.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024, // 64 MB
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// Upper bounds for parameters read back from a stored digest. A digest that
// exceeds them is treated as malformed rather than computed.
const (
	maxDigestMemory = 1024 * 1024 // 1 GB
	maxDigestTime   = 64
	maxDigestKeyLen = 1024
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Wrapf(ErrInvalidInput, "password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the digest. Malformed
	// digests never match.
	Verify(password, digest string) bool

	// NeedsUpgrade returns true if the digest should be recomputed with the
	// hasher's current algorithm and parameters.
	NeedsUpgrade(digest string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id. It also verifies
// legacy bcrypt digests.
type Argon2idHasher struct {
	params Argon2Params
	dummy  argon2Digest
}

// NewArgon2idHasher creates an Argon2idHasher with DefaultArgon2Params.
func NewArgon2idHasher() *Argon2idHasher {
	return NewArgon2idHasherWithParams(DefaultArgon2Params)
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom
// parameters. Zero fields fall back to defaults.
func NewArgon2idHasherWithParams(p Argon2Params) *Argon2idHasher {
	if p.Time == 0 {
		p.Time = DefaultArgon2Params.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultArgon2Params.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultArgon2Params.Threads
	}
	if p.SaltLen == 0 {
		p.SaltLen = DefaultArgon2Params.SaltLen
	}
	if p.KeyLen == 0 {
		p.KeyLen = DefaultArgon2Params.KeyLen
	}
	return &Argon2idHasher{
		params: p,
		dummy: argon2Digest{
			params: p,
			salt:   make([]byte, p.SaltLen),
			key:    make([]byte, p.KeyLen),
		},
	}
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
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

// Verify checks if the password matches the digest.
func (h *Argon2idHasher) Verify(password, digest string) bool {
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	}

	d, err := parseArgon2Digest(digest)
	if err != nil {
		// Burn the same work as a real check so malformed digests are not
		// distinguishable by timing.
		h.dummy.matches(password)
		return false
	}
	return d.matches(password)
}

// NeedsUpgrade returns true for non-argon2id digests and for argon2id
// digests computed with weaker parameters than the hasher's.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	d, err := parseArgon2Digest(digest)
	if err != nil {
		return true
	}
	return d.params.Time < h.params.Time ||
		d.params.Memory < h.params.Memory ||
		d.params.Threads < h.params.Threads ||
		uint32(len(d.key)) < h.params.KeyLen
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

type argon2Digest struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func (d argon2Digest) matches(password string) bool {
	computed := argon2.IDKey([]byte(password), d.salt, d.params.Time, d.params.Memory, d.params.Threads, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(computed, d.key) == 1
}

func parseArgon2Digest(encoded string) (argon2Digest, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if threads == 0 || threads > 255 {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	if memory == 0 || memory > maxDigestMemory {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("memory value %d out of range", memory)
	}
	if time == 0 || time > maxDigestTime {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("time value %d out of range", time)
	}
	if len(key) == 0 || len(key) > maxDigestKeyLen {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return argon2Digest{
		params: Argon2Params{Time: time, Memory: memory, Threads: uint8(threads)},
		salt:   salt,
		key:    key,
	}, nil
}

// dummyDigest is a real digest of a throwaway password, computed on first
// use. Lookup misses verify against it so they take as long as a mismatch.
type dummyDigest struct {
	once   sync.Once
	hasher PasswordHasher
	digest string
}

func newDummyDigest(h PasswordHasher) *dummyDigest {
	return &dummyDigest{hasher: h}
}

func (d *dummyDigest) get() string {
	d.once.Do(func() {
		digest, err := d.hasher.Hash("gatekeeper-timing-equalizer")
		if err != nil {
			// Falls back to a malformed digest; Verify still does the work.
			digest = "$argon2id$"
		}
		d.digest = digest
	})
	return d.digest
}
