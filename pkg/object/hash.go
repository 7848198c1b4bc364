package object

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names the digest used to address objects.
type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	SHA1    Algorithm = "sha1"
	BLAKE2b Algorithm = "blake2b"
)

// ParseAlgorithm maps a config value to an Algorithm. The empty string
// selects SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", SHA256:
		return SHA256, nil
	case SHA1:
		return SHA1, nil
	case BLAKE2b, "blake2b-256":
		return BLAKE2b, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", s)
	}
}

// Size returns the raw digest width in bytes.
func (a Algorithm) Size() int {
	if a == SHA1 {
		return sha1.Size
	}
	return sha256.Size
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New()
	case BLAKE2b:
		h, err := blake2b.New256(nil)
		if err != nil {
			// New256 only fails for oversized keys.
			panic(err)
		}
		return h
	default:
		return sha256.New()
	}
}

// HashBytes computes the raw digest of data and returns it as a
// lowercase hex-encoded Hash.
func (a Algorithm) HashBytes(data []byte) Hash {
	h := a.newHash()
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// HashObject computes the digest of the envelope "type len\0content",
// mirroring Git's object hashing.
func (a Algorithm) HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := a.newHash()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// AlgorithmOf returns the algorithm r addresses objects with, or SHA256 when
// r does not say.
func AlgorithmOf(r Reader) Algorithm {
	if a, ok := r.(interface{ Algorithm() Algorithm }); ok {
		return a.Algorithm()
	}
	return SHA256
}

// HashObject hashes with the default algorithm.
func HashObject(objType ObjectType, data []byte) Hash {
	return SHA256.HashObject(objType, data)
}

// Valid reports whether h is a lowercase hex digest of 20 or 32 bytes.
func (h Hash) Valid() bool {
	if len(h) != 2*sha1.Size && len(h) != 2*sha256.Size {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Short returns the first eight hex digits, for display.
func (h Hash) Short() string {
	if len(h) > 8 {
		return string(h[:8])
	}
	return string(h)
}

func (h Hash) String() string { return string(h) }

// ParseHash normalizes s and validates it as a Hash.
func ParseHash(s string) (Hash, error) {
	h := Hash(strings.ToLower(strings.TrimSpace(s)))
	if !h.Valid() {
		return "", fmt.Errorf("invalid object hash %q", s)
	}
	return h, nil
}
