package otpcode

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/creachadair/otp"
)

// secretEncoding is RFC 4648 base32 without padding, the form issuers use to
// present secrets.
var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// DecodeSecret decodes a base32-encoded shared secret as presented by an
// issuer. Letters may be of either case, trailing "=" padding is optional, and
// whitespace anywhere in the string is ignored (issuers often print secrets
// in groups of four).
//
// If s is empty, contains characters outside the base32 alphabet, or ends
// with a group of characters that cannot encode whole bytes, the error
// satisfies errors.Is(err, ErrInvalidSecret) and no bytes are returned.
func DecodeSecret(s string) ([]byte, error) {
	norm := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	norm = strings.TrimRight(norm, "=")
	if norm == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidSecret)
	}

	// A final group of 1, 3, or 6 characters is never produced by an encoder.
	switch len(norm) % 8 {
	case 1, 3, 6:
		return nil, fmt.Errorf("%w: incomplete final group in %d characters", ErrInvalidSecret, len(norm))
	}

	var cfg otp.Config
	if err := cfg.ParseKey(norm); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	} else if cfg.Key == "" {
		return nil, fmt.Errorf("%w: secret %q is too short", ErrInvalidSecret, s)
	}
	return []byte(cfg.Key), nil
}

// EncodeSecret encodes a raw secret in the canonical form used by issuers:
// uppercase base32 with no padding.
func EncodeSecret(key []byte) string { return secretEncoding.EncodeToString(key) }
