package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcAlgorithm = "argon2id"

var (
	ErrHashMalformed = errors.New("password hash is not a valid argon2id PHC string")
	ErrWeakParams    = errors.New("argon2 parameters below minimum hardness")
)

// Params are the Argon2id cost parameters. Zero values are rejected;
// use DefaultParams for the baseline configuration.
type Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follows the OWASP-recommended argon2id baseline.
func DefaultParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords. It is immutable after
// construction and safe for concurrent use.
type Hasher struct {
	params Params
}

func NewHasher(p Params) (*Hasher, error) {
	if p.MemoryKB < 8*1024 || p.Iterations < 1 || p.Parallelism < 1 ||
		p.SaltLength < 16 || p.KeyLength < 16 {
		return nil, ErrWeakParams
	}
	return &Hasher{params: p}, nil
}

// Hash derives an Argon2id digest over the raw password bytes and
// returns it in PHC format. No Unicode normalization is applied.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.MemoryKB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the stored PHC hash. The
// comparison runs in constant time over the derived keys.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.iterations,
		parsed.memoryKB,
		parsed.parallelism,
		uint32(len(parsed.key)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsRehash reports whether the stored hash was produced under
// weaker parameters than the hasher is configured with.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	return parsed.memoryKB < h.params.MemoryKB ||
		parsed.iterations < h.params.Iterations ||
		parsed.parallelism < h.params.Parallelism ||
		uint32(len(parsed.key)) != h.params.KeyLength, nil
}

type phcFields struct {
	memoryKB    uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phcFields, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != phcAlgorithm {
		return nil, ErrHashMalformed
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") || version != argon2.Version {
		return nil, ErrHashMalformed
	}

	var f phcFields
	for _, pair := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, ErrHashMalformed
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, ErrHashMalformed
		}
		switch name {
		case "m":
			f.memoryKB = uint32(n)
		case "t":
			f.iterations = uint32(n)
		case "p":
			if n > 255 {
				return nil, ErrHashMalformed
			}
			f.parallelism = uint8(n)
		default:
			return nil, ErrHashMalformed
		}
	}
	if f.memoryKB == 0 || f.iterations == 0 || f.parallelism == 0 {
		return nil, ErrHashMalformed
	}

	if f.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(f.salt) < 16 {
		return nil, ErrHashMalformed
	}
	if f.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(f.key) < 16 {
		return nil, ErrHashMalformed
	}

	return &f, nil
}
