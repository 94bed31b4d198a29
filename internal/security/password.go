package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var ErrMalformedHash = errors.New("malformed password hash")

// Bounds on parameters read back from a stored digest. Anything outside them
// is treated as malformed rather than handed to argon2.
const (
	maxMemoryKiB  = 1 << 20 // 1 GiB
	maxIterations = 64
	maxSaltBytes  = 64
	maxKeyBytes   = 128
)

// Params tunes the argon2id cost. Memory is in KiB.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

type Hasher struct {
	params Params
}

func NewHasher(p Params) *Hasher {
	if p.SaltLength == 0 {
		p.SaltLength = DefaultParams.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = DefaultParams.KeyLength
	}
	if p.Iterations == 0 {
		p.Iterations = 1
	}
	if p.Parallelism == 0 {
		p.Parallelism = 1
	}
	if p.Memory < 8*uint32(p.Parallelism) {
		p.Memory = 8 * uint32(p.Parallelism)
	}
	return &Hasher{params: p}
}

// Hash derives an argon2id digest with a fresh random salt, PHC encoded.
func (h *Hasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.params.SaltLength)

	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	b64 := base64.RawStdEncoding

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify reports whether plain reproduces hash. bcrypt digests are accepted
// so rows written by older tooling still log in.
func (h *Hasher) Verify(hash, plain string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		ok, err := verifyArgon2id(hash, plain)
		return err == nil && ok
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
	default:
		return false
	}
}

func verifyArgon2id(encoded, plain string) (bool, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrMalformedHash
	}
	if version != argon2.Version {
		return false, ErrMalformedHash
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrMalformedHash
	}

	// argon2.IDKey panics on t < 1 or p < 1
	if iterations < 1 || iterations > maxIterations ||
		parallelism < 1 ||
		memory < 8*uint32(parallelism) || memory > maxMemoryKiB {
		return false, ErrMalformedHash
	}

	b64 := base64.RawStdEncoding

	if b64.DecodedLen(len(parts[4])) > maxSaltBytes || b64.DecodedLen(len(parts[5])) > maxKeyBytes {
		return false, ErrMalformedHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedHash
	}

	want, err := b64.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, ErrMalformedHash
	}

	got := argon2.IDKey([]byte(plain), salt, iterations, memory, parallelism, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
