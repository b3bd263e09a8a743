// Package security implements credential hashing and bearer token handling.
package security

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// bcryptMaxInput is the longest input bcrypt accepts.
const bcryptMaxInput = 72

// MaxArgon2Memory bounds the memory cost (KiB) accepted from a stored hash.
const MaxArgon2Memory = 1 << 20

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
	ErrInvalidCost          = errors.New("invalid hash cost parameters")
)

// HasherConfig holds the cost parameters used for new hashes.
type HasherConfig struct {
	Algorithm  string
	Argon2     argon2id.Params
	BcryptCost int
}

// DefaultHasherConfig returns argon2id with t=2, m=100 MiB, p=8.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Algorithm: AlgorithmArgon2id,
		Argon2: argon2id.Params{
			Memory:      102400,
			Iterations:  2,
			Parallelism: 8,
			SaltLength:  16,
			KeyLength:   32,
		},
		BcryptCost: 12,
	}
}

// PasswordHasher hashes and verifies passwords. Stored hashes are prefix
// tagged so argon2id and legacy bcrypt hashes can live side by side. It is
// immutable after construction and safe for concurrent use.
type PasswordHasher struct {
	cfg HasherConfig
}

func NewPasswordHasher(cfg HasherConfig) (*PasswordHasher, error) {
	switch cfg.Algorithm {
	case "", AlgorithmArgon2id:
		cfg.Algorithm = AlgorithmArgon2id
		p := cfg.Argon2
		if p.Iterations < 1 || p.Parallelism < 1 || p.KeyLength < 16 || p.SaltLength < 8 || p.Memory < 8*uint32(p.Parallelism) || p.Memory > MaxArgon2Memory {
			return nil, fmt.Errorf("%w: argon2id m=%d t=%d p=%d", ErrInvalidCost, p.Memory, p.Iterations, p.Parallelism)
		}
	case AlgorithmBcrypt:
		if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("%w: bcrypt cost %d", ErrInvalidCost, cfg.BcryptCost)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}
	return &PasswordHasher{cfg: cfg}, nil
}

// Algorithm returns the algorithm used for new hashes.
func (h *PasswordHasher) Algorithm() string { return h.cfg.Algorithm }

// Hash returns the encoded hash of plain and the algorithm that produced it.
func (h *PasswordHasher) Hash(plain string) (string, string, error) {
	if h.cfg.Algorithm == AlgorithmBcrypt {
		b, err := bcrypt.GenerateFromPassword(bcryptInput(plain), h.cfg.BcryptCost)
		if err != nil {
			return "", "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(b), AlgorithmBcrypt, nil
	}
	params := h.cfg.Argon2
	hash, err := argon2id.CreateHash(plain, &params)
	if err != nil {
		return "", "", fmt.Errorf("argon2id: %w", err)
	}
	return hash, AlgorithmArgon2id, nil
}

// Verify reports whether plain matches hash. Malformed or unrecognized hashes
// never match.
func (h *PasswordHasher) Verify(plain, hash string) bool {
	alg, ok := FormatOf(hash)
	if !ok {
		return false
	}
	switch alg {
	case AlgorithmArgon2id:
		params, _, _, err := argon2id.DecodeHash(hash)
		if err != nil || !sane(params) {
			return false
		}
		match, err := argon2id.ComparePasswordAndHash(plain, hash)
		return err == nil && match
	case AlgorithmBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(plain)) == nil
	}
	return false
}

// NeedsRehash reports whether hash was produced with weaker parameters, or a
// different algorithm, than the current configuration.
func (h *PasswordHasher) NeedsRehash(hash string) bool {
	alg, ok := FormatOf(hash)
	if !ok {
		return false
	}
	if h.cfg.Algorithm == AlgorithmBcrypt {
		if alg != AlgorithmBcrypt {
			return false
		}
		cost, err := bcrypt.Cost([]byte(hash))
		return err == nil && cost < h.cfg.BcryptCost
	}
	if alg == AlgorithmBcrypt {
		return true
	}
	p, _, _, err := argon2id.DecodeHash(hash)
	if err != nil {
		return false
	}
	want := h.cfg.Argon2
	return p.Memory < want.Memory ||
		p.Iterations < want.Iterations ||
		p.Parallelism < want.Parallelism ||
		p.KeyLength < want.KeyLength ||
		p.SaltLength < want.SaltLength
}

// bcryptInput passes short passwords through unchanged and replaces longer
// ones with the base64 SHA-256 digest, which fits the 72 byte limit.
func bcryptInput(plain string) []byte {
	if len(plain) <= bcryptMaxInput {
		return []byte(plain)
	}
	sum := sha256.Sum256([]byte(plain))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// FormatOf detects the algorithm of an encoded hash from its prefix.
func FormatOf(hash string) (string, bool) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return AlgorithmArgon2id, true
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return AlgorithmBcrypt, true
	}
	return "", false
}

// argon2 panics on zero time or threads and happily compares empty keys, so
// decoded parameters are checked before deriving anything.
func sane(p *argon2id.Params) bool {
	return p != nil &&
		p.Iterations > 0 &&
		p.Parallelism > 0 &&
		p.KeyLength > 0 &&
		p.SaltLength > 0 &&
		p.Memory > 0 &&
		p.Memory <= MaxArgon2Memory
}
