// Package aflib is a support library for the authfish tool.
package aflib

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creachadair/authfish/otpcode"
	"github.com/creachadair/otp/otpauth"
	yaml "gopkg.in/yaml.v3"
)

// A File is the contents of an accounts file. Accounts files are maintained
// by the user (or another tool); authfish only reads them.
type File struct {
	// Defaults are default generation settings for accounts that do not
	// specify their own.
	Defaults *Defaults `yaml:"defaults,omitempty"`

	// Accounts are the accounts defined by the file. Each account is
	// identified by a unique non-empty label.
	Accounts []*Account `yaml:"accounts,omitempty"`
}

// Defaults are default generation settings. Zero fields fall back to the
// settings in otpcode.DefaultParams.
type Defaults struct {
	Algorithm string `yaml:"algorithm,omitempty"`
	Digits    int    `yaml:"digits,omitempty"`
	Period    int    `yaml:"period,omitempty"`
}

// An Account describes a single one-time password configuration.
type Account struct {
	// Label is a unique identifier for the account.
	Label string `yaml:"label"`

	// Title is a human-readable title for the account.
	Title string `yaml:"title,omitempty"`

	// Issuer is the name of the service that issued the secret.
	Issuer string `yaml:"issuer,omitempty"`

	// Name is the login name or e-mail address for the account.
	Name string `yaml:"name,omitempty"`

	// Secret is the base32-encoded shared secret. Exactly one of Secret and
	// OTP must be set.
	Secret string `yaml:"secret,omitempty"`

	// Algorithm, Digits, and Period override the defaults when Secret is set.
	Algorithm string `yaml:"algorithm,omitempty"`
	Digits    int    `yaml:"digits,omitempty"`
	Period    int    `yaml:"period,omitempty"`

	// OTP, if set, is an otpauth:// URL giving the complete configuration.
	OTP string `yaml:"otp,omitempty"`

	// Archived, if true, indicates the account should not be shown in default
	// listings and search results.
	Archived bool `yaml:"archived,omitempty"`
}

// DisplayName returns a human-readable name for a, preferring the title,
// then the issuer, then the label.
func (a *Account) DisplayName() string { return cmp.Or(a.Title, a.Issuer, a.Label) }

// LoadFile reads and parses the accounts file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}
	return f, nil
}

// ParseFile parses the contents of an accounts file, and checks that every
// account has a unique label and exactly one source of configuration.
func ParseFile(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse accounts: %w", err)
	}
	seen := make(map[string]bool)
	for i, a := range f.Accounts {
		if a == nil || a.Label == "" {
			return nil, fmt.Errorf("account %d: missing label", i+1)
		} else if seen[a.Label] {
			return nil, fmt.Errorf("account %d: duplicate label %q", i+1, a.Label)
		}
		seen[a.Label] = true
		if (a.Secret == "") == (a.OTP == "") {
			return nil, fmt.Errorf("account %q: exactly one of secret and otp must be set", a.Label)
		}
	}
	return &f, nil
}

// Lookup returns the account with the given label, or nil.
func (f *File) Lookup(label string) *Account {
	for _, a := range f.Accounts {
		if a.Label == label {
			return a
		}
	}
	return nil
}

// Config is a fully-resolved generation configuration for an account.
type Config struct {
	Type    string         // "totp" or "hotp"
	Secret  string         // base32-encoded shared secret
	Params  otpcode.Params // generation settings; TimeStep is unused for HOTP
	Counter uint64         // HOTP counter; unused for TOTP
}

// Config resolves the generation settings for a. Settings from an otpauth URL
// take precedence over the account fields, which take precedence over the
// file defaults, which take precedence over otpcode.DefaultParams.
func (f *File) Config(a *Account) (Config, error) {
	var d Defaults
	if f.Defaults != nil {
		d = *f.Defaults
	}
	out := Config{Type: "totp", Secret: a.Secret}
	algName := cmp.Or(a.Algorithm, d.Algorithm)
	digits := cmp.Or(a.Digits, d.Digits, otpcode.DefaultParams.Digits)
	period := cmp.Or(a.Period, d.Period, otpcode.DefaultParams.TimeStep)

	if a.OTP != "" {
		u, err := otpauth.ParseURL(a.OTP)
		if err != nil {
			return Config{}, fmt.Errorf("account %q: %w", a.Label, err)
		}
		out.Type = strings.ToLower(u.Type)
		out.Secret = u.RawSecret
		out.Counter = u.Counter
		algName = cmp.Or(u.Algorithm, algName)
		digits = cmp.Or(u.Digits, digits)
		period = cmp.Or(u.Period, period)
	}
	if out.Type != "totp" && out.Type != "hotp" {
		return Config{}, fmt.Errorf("account %q: unsupported OTP type %q", a.Label, out.Type)
	}

	alg, err := otpcode.ParseAlgorithm(algName)
	if err != nil {
		return Config{}, fmt.Errorf("account %q: %w", a.Label, err)
	}
	out.Params = otpcode.Params{Algorithm: alg, Digits: digits, TimeStep: period}
	return out, nil
}
