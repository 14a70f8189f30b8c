package otpcode

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// pow10 holds the code modulus for each permitted number of digits.
var pow10 = [...]uint32{1, 10, 100, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9}

// HOTP computes the RFC 4226 one-time password for secret and counter, as a
// decimal string of exactly the specified number of digits.
//
// An empty secret is permitted, and yields the code for an HMAC with an empty
// key. An error is reported only if digits or alg are not supported; such
// errors satisfy errors.Is(err, ErrUnableToGenerate).
func HOTP(secret []byte, counter uint64, digits int, alg Algorithm) (string, error) {
	if digits < MinDigits || digits > MaxDigits {
		return "", fmt.Errorf("%w: digits %d out of range %d..%d", ErrUnableToGenerate, digits, MinDigits, MaxDigits)
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)
	digest, err := alg.HMAC(secret, msg[:])
	if err != nil {
		return "", err
	}
	return formatCode(Truncate(digest)%pow10[digits], digits), nil
}

// Truncate applies RFC 4226 dynamic truncation to an HMAC digest: the low 4
// bits of the last byte select an offset, and the 4 bytes at that offset are
// read as a big-endian integer with the high bit cleared.
//
// The digest must be at least 20 bytes long, as all supported HMAC digests are.
func Truncate(digest []byte) uint32 {
	offset := digest[len(digest)-1] & 0x0f
	return binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7fffffff
}

// formatCode renders v in decimal, left-padded with zeroes to width digits.
func formatCode(v uint32, width int) string {
	const zeroes = "0000000000"
	s := strconv.FormatUint(uint64(v), 10)
	if len(s) < width {
		s = zeroes[:width-len(s)] + s
	}
	return s
}
