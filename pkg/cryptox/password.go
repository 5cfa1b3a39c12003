package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash         = errors.New("cryptox: invalid hash format")
	ErrIncompatibleVersion = errors.New("cryptox: incompatible argon2 version")
)

// Params are the Argon2id cost parameters encoded into every digest.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams targets tens of milliseconds per hash with a 64 MiB working
// set and a single lane.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Upper bounds accepted when decoding a stored digest. A tampered row must
// not be able to make Verify allocate gigabytes.
const (
	maxMemory     = 1024 * 1024 // 1 GiB
	maxIterations = 64
	maxKeyLength  = 128
)

// Hasher hashes and verifies secrets with Argon2id. The zero value is not
// usable; use NewHasher.
type Hasher struct {
	Params Params
	pepper string

	dummyOnce sync.Once
	dummy     string
}

// NewHasher returns a Hasher with the given cost parameters. The pepper is
// appended to every secret before hashing and may be empty.
func NewHasher(params Params, pepper string) *Hasher {
	return &Hasher{Params: params, pepper: pepper}
}

// Hash generates a PHC-format Argon2id digest including salt and parameters.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: read salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(secret+h.pepper),
		salt,
		h.Params.Iterations,
		h.Params.Memory,
		h.Params.Parallelism,
		h.Params.KeyLength,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.Params.Memory,
		h.Params.Iterations,
		h.Params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether candidate matches digest. The digest carries its own
// parameters so older hashes keep verifying after DefaultParams change.
// A malformed digest is simply a mismatch.
func (h *Hasher) Verify(digest, candidate string) bool {
	p, salt, want, err := decodeHash(digest)
	if err != nil {
		return false
	}

	got := argon2.IDKey(
		[]byte(candidate+h.pepper),
		salt,
		p.Iterations,
		p.Memory,
		p.Parallelism,
		p.KeyLength,
	)

	return subtle.ConstantTimeCompare(got, want) == 1
}

// VerifyDummy burns the same work as a real Verify against a throwaway
// digest. Login calls it for unknown emails so response time does not reveal
// whether an account exists.
func (h *Hasher) VerifyDummy(candidate string) {
	h.dummyOnce.Do(func() {
		d, err := h.Hash(MustGenerateToken(TokenSize128))
		if err == nil {
			h.dummy = d
		}
	})
	_ = h.Verify(h.dummy, candidate)
}

// decodeHash parses $argon2id$v=19$m=X,t=Y,p=Z$salt$hash.
func decodeHash(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return Params{}, nil, nil, ErrIncompatibleVersion
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if p.Memory == 0 || p.Memory > maxMemory || p.Iterations == 0 || p.Iterations > maxIterations || p.Parallelism == 0 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxKeyLength {
		return Params{}, nil, nil, ErrInvalidHash
	}

	p.SaltLength = uint32(len(salt)) // #nosec G115 - bounded by decoded length
	p.KeyLength = uint32(len(key))   // #nosec G115 - bounded by maxKeyLength
	return p, salt, key, nil
}
