package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"chat-relay/errors"
)

// Argon2id parameters following the OWASP recommendation. They are baked
// into each stored hash, so they can be raised later without invalidating
// existing accounts.
const (
	hashMemory      = 64 * 1024 // KiB
	hashIterations  = 3
	hashParallelism = 2
	saltLength      = 16
	keyLength       = 32
)

// hashParams is everything a stored hash carries besides the digest itself.
type hashParams struct {
	version     int
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

// HashPassword derives an Argon2id hash from a plain password and encodes it
// in the standard `$argon2id$v=...$m=,t=,p=$salt$digest` form.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt generation failed: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt, hashIterations, hashMemory, hashParallelism, keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, hashMemory, hashIterations, hashParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// ComparePassword re-derives the hash of a candidate password using the
// parameters stored alongside the digest and compares in constant time.
// A hash this package did not produce reports ErrMalformedHash.
func ComparePassword(password, encodedHash string) (bool, error) {
	params, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), params.salt,
		params.iterations, params.memory, params.parallelism, uint32(len(params.digest)))

	return subtle.ConstantTimeCompare(params.digest, candidate) == 1, nil
}

func decodeHash(encodedHash string) (hashParams, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return hashParams{}, errors.ErrMalformedHash
	}

	var params hashParams
	if _, err := fmt.Sscanf(parts[2], "v=%d", &params.version); err != nil {
		return hashParams{}, fmt.Errorf("%w: %v", errors.ErrMalformedHash, err)
	}
	if params.version != argon2.Version {
		return hashParams{}, fmt.Errorf("%w: unsupported version %d", errors.ErrMalformedHash, params.version)
	}

	var parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.memory, &params.iterations, &parallelism); err != nil {
		return hashParams{}, fmt.Errorf("%w: %v", errors.ErrMalformedHash, err)
	}
	params.parallelism = uint8(parallelism)

	var err error
	if params.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return hashParams{}, fmt.Errorf("%w: %v", errors.ErrMalformedHash, err)
	}
	if params.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return hashParams{}, fmt.Errorf("%w: %v", errors.ErrMalformedHash, err)
	}
	return params, nil
}
