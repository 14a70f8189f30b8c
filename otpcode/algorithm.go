package otpcode

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
)

// Algorithm selects the hash function used to compute the HMAC of a counter.
type Algorithm int

const (
	// SHA1 selects HMAC-SHA1, with a 20-byte digest. This is the default for
	// nearly all issuers.
	SHA1 Algorithm = iota + 1

	// SHA256 selects HMAC-SHA256, with a 32-byte digest.
	SHA256

	// SHA512 selects HMAC-SHA512, with a 64-byte digest.
	SHA512
)

var algorithmNames = [...]string{SHA1: "SHA1", SHA256: "SHA256", SHA512: "SHA512"}

func (a Algorithm) valid() bool { return a >= SHA1 && a <= SHA512 }

// String returns the conventional name of a, e.g., "SHA256".
func (a Algorithm) String() string {
	if a.valid() {
		return algorithmNames[a]
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm parses the name of an algorithm, as it appears in otpauth
// URLs ("SHA1", "SHA256", "SHA512"). Case is ignored, and a hyphen after
// "SHA" is permitted. An empty name selects SHA1.
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := strings.ToUpper(strings.Replace(strings.TrimSpace(s), "-", "", 1))
	switch norm {
	case "", "SHA1":
		return SHA1, nil
	case "SHA256":
		return SHA256, nil
	case "SHA512":
		return SHA512, nil
	}
	return 0, fmt.Errorf("%w: unknown algorithm %q", ErrUnableToGenerate, s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.valid() {
		return nil, fmt.Errorf("%w: unsupported algorithm %d", ErrUnableToGenerate, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	v, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// New returns a constructor for the hash function selected by a, or nil if a
// is not a supported algorithm.
func (a Algorithm) New() func() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New
	case SHA256:
		return sha256.New
	case SHA512:
		return sha512.New
	}
	return nil
}

// HMAC computes the RFC 2104 HMAC of message under key, using the hash
// function selected by a. The key may have any length.  It reports an error
// only if a is not a supported algorithm.
func (a Algorithm) HMAC(key, message []byte) ([]byte, error) {
	newHash := a.New()
	if newHash == nil {
		return nil, fmt.Errorf("%w: unsupported algorithm %v", ErrUnableToGenerate, a)
	}
	h := hmac.New(newHash, key)
	h.Write(message)
	return h.Sum(nil), nil
}
