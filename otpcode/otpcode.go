// Package otpcode implements time-based one-time passwords as defined by
// RFC 6238, on top of the HMAC-based one-time passwords of RFC 4226.
//
// The functions in this package are pure: for fixed inputs they always produce
// the same output, and they keep no state between calls.
//
// Basic usage:
//
//	pw, err := otpcode.Compute("JBSWY3DPEHPK3PXP", otpcode.DefaultParams, time.Now())
//	if err != nil {
//	   log.Fatalf("Generate code: %v", err)
//	}
//	fmt.Println(pw.Code, pw.Remaining)
package otpcode

import (
	"fmt"
	"time"
)

// Params are the settings shared by an issuer and an authenticator to
// generate codes for a secret. The zero value is not valid; start from
// DefaultParams to obtain the standard settings.
type Params struct {
	Algorithm Algorithm // the HMAC hash function
	Digits    int       // the number of decimal digits in a code (6..8)
	TimeStep  int       // the number of seconds per counter increment (> 0)
}

// DefaultParams are the settings used by most issuers: HMAC-SHA1, 6 digits,
// and a 30-second time step.
var DefaultParams = Params{
	Algorithm: SHA1,
	Digits:    6,
	TimeStep:  30,
}

const (
	// MinDigits is the smallest permitted code length.
	MinDigits = 6

	// MaxDigits is the largest permitted code length.
	MaxDigits = 8
)

// Validate reports an error if p is not a usable configuration.  The
// resulting error satisfies errors.Is(err, ErrUnableToGenerate).
func (p Params) Validate() error {
	if !p.Algorithm.valid() {
		return fmt.Errorf("%w: unsupported algorithm %v", ErrUnableToGenerate, p.Algorithm)
	}
	if p.Digits < MinDigits || p.Digits > MaxDigits {
		return fmt.Errorf("%w: digits %d out of range %d..%d", ErrUnableToGenerate, p.Digits, MinDigits, MaxDigits)
	}
	if p.TimeStep <= 0 {
		return fmt.Errorf("%w: time step must be positive (got %d)", ErrUnableToGenerate, p.TimeStep)
	}
	return nil
}

// A Password is a one-time password generated for a particular instant.
type Password struct {
	// Code is the decimal passcode, zero-padded to the configured digits.
	Code string `json:"code"`

	// Remaining is the number of seconds until the code changes. It is in the
	// range 1 to the time step inclusive; at the start of a window it is equal
	// to the full time step.
	Remaining int `json:"remaining"`
}

// Counter returns the TOTP counter for the specified Unix time, that is,
// floor(now / step).  The caller must ensure now ≥ 0 and step > 0.
func Counter(now int64, step int) uint64 { return uint64(now) / uint64(step) }

// Remaining returns the number of seconds from the Unix time now until the
// counter for step next increments.  The caller must ensure now ≥ 0 and
// step > 0.
func Remaining(now int64, step int) int { return step - int(now%int64(step)) }

// TOTP computes the one-time password for secret at the Unix time now.
func TOTP(secret []byte, now int64, p Params) (Password, error) {
	if err := p.Validate(); err != nil {
		return Password{}, err
	}
	if now < 0 {
		return Password{}, fmt.Errorf("%w: time %d precedes the Unix epoch", ErrUnableToGenerate, now)
	}
	code, err := HOTP(secret, Counter(now, p.TimeStep), p.Digits, p.Algorithm)
	if err != nil {
		return Password{}, err
	}
	return Password{Code: code, Remaining: Remaining(now, p.TimeStep)}, nil
}

// Compute decodes the base32 secret and computes the one-time password for it
// at the given time. Fractional seconds of now are discarded.
//
// If secret is not valid base32, the error satisfies
// errors.Is(err, ErrInvalidSecret). If p is not valid, the error satisfies
// errors.Is(err, ErrUnableToGenerate).
func Compute(secret string, p Params, now time.Time) (Password, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return Password{}, err
	}
	return TOTP(key, now.Unix(), p)
}
