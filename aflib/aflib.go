package aflib

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/creachadair/authfish/otpcode"
	"github.com/creachadair/getpass"
	"github.com/creachadair/mds/slice"
)

// GetSecret prompts the user at the terminal for a secret with echo disabled.
// It reports an error if the secret entered is empty.
func GetSecret(prompt string) (string, error) {
	secret, err := getpass.Prompt(prompt)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	} else if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("read secret: %w: empty secret", otpcode.ErrInvalidSecret)
	}
	return secret, nil
}

// GenerateCode returns the one-time password for c at the given time.  The
// code is shifted by shift steps: for TOTP, shift time steps from now; for
// HOTP, shift increments of the counter. A shift that would move the time
// or counter out of range is reported as ErrUnableToGenerate.
//
// For HOTP configurations the Remaining field of the result is zero, since
// HOTP codes do not expire.
func GenerateCode(c Config, now time.Time, shift int) (otpcode.Password, error) {
	switch c.Type {
	case "totp":
		if err := c.Params.Validate(); err != nil {
			return otpcode.Password{}, err
		}
		key, err := otpcode.DecodeSecret(c.Secret)
		if err != nil {
			return otpcode.Password{}, err
		}
		at, ok := shiftTime(now.Unix(), shift, c.Params.TimeStep)
		if !ok {
			return otpcode.Password{}, fmt.Errorf("%w: time shift %d out of range", otpcode.ErrUnableToGenerate, shift)
		}
		return otpcode.TOTP(key, at, c.Params)
	case "hotp":
		key, err := otpcode.DecodeSecret(c.Secret)
		if err != nil {
			return otpcode.Password{}, err
		}
		ctr, ok := shiftCounter(c.Counter, shift)
		if !ok {
			return otpcode.Password{}, fmt.Errorf("%w: counter %d shifted by %d out of range",
				otpcode.ErrUnableToGenerate, c.Counter, shift)
		}
		code, err := otpcode.HOTP(key, ctr, c.Params.Digits, c.Params.Algorithm)
		if err != nil {
			return otpcode.Password{}, err
		}
		return otpcode.Password{Code: code}, nil
	default:
		return otpcode.Password{}, fmt.Errorf("%w: unsupported OTP type %q", otpcode.ErrUnableToGenerate, c.Type)
	}
}

// shiftTime returns the Unix time shift steps of step seconds from now, and
// reports whether the result fits in an int64.  It requires step > 0.
func shiftTime(now int64, shift, step int) (int64, bool) {
	s, d := int64(shift), int64(step)
	if s > math.MaxInt64/d || s < math.MinInt64/d {
		return 0, false
	}
	off := s * d
	if (off > 0 && now > math.MaxInt64-off) || (off < 0 && now < math.MinInt64-off) {
		return 0, false
	}
	return now + off, true
}

// shiftCounter returns ctr shifted by shift, and reports whether the result
// is in the range of a uint64.
func shiftCounter(ctr uint64, shift int) (uint64, bool) {
	if shift >= 0 {
		d := uint64(shift)
		return ctr + d, ctr <= math.MaxUint64-d
	}
	d := uint64(-(shift + 1)) + 1 // safe for math.MinInt
	return ctr - d, d <= ctr
}

// FindResult is the result of a successful call to FindAccount.
type FindResult struct {
	Index   int      // offset of the account in the file
	Account *Account // the account matched by the query
}

// MatchQuality indicates how good a match a query is for an account.
// Smaller values are better matches, except MatchNone.
type MatchQuality int

const (
	// MatchNone means the query does not match the account at all.
	MatchNone MatchQuality = iota

	// MatchLabel means the query matches the account's label.
	MatchLabel

	// MatchIssuer means the query is a case-insensitive match for the
	// account's issuer.
	MatchIssuer

	// MatchTitle means the query is a case-insensitive substring match for the
	// title or label of the account.
	MatchTitle

	// MatchName means the query is a case-insensitive substring match for the
	// login name of the account.
	MatchName

	// MatchSubstring means the query is a case-insensitive substring match
	// for the issuer of the account.
	MatchSubstring
)

// MatchAccount reports how good a match query is for the specified account.
// An empty query matches every account.
func MatchAccount(query string, a *Account) MatchQuality {
	if a.Label != "" && query == a.Label {
		return MatchLabel
	}
	sub := strings.ToLower(query)
	if a.Issuer != "" && sub == strings.ToLower(a.Issuer) {
		return MatchIssuer
	}
	if strings.Contains(strings.ToLower(a.Label), sub) || strings.Contains(strings.ToLower(a.Title), sub) {
		return MatchTitle
	}
	if strings.Contains(strings.ToLower(a.Name), sub) {
		return MatchName
	}
	if strings.Contains(strings.ToLower(a.Issuer), sub) {
		return MatchSubstring
	}
	return MatchNone
}

// FoundAccount is a single account reported by FindAccounts.
type FoundAccount struct {
	Quality MatchQuality `json:"quality"` // how this account was matched
	Index   int          `json:"index"`   // the index of the account in the file
	Account *Account     `json:"account"` // the account itself
}

// FindAccounts finds candidate accounts matching the specified query.
// Results are returned in order of quality from highest to lowest, with ties
// broken by index.
func FindAccounts(accts []*Account, query string) []FoundAccount {
	var out []FoundAccount
	for i, a := range accts {
		m := MatchAccount(query, a)
		if m == MatchNone {
			continue
		}
		out = append(out, FoundAccount{Quality: m, Index: i, Account: a})
	}
	slices.SortFunc(out, func(a, b FoundAccount) int {
		if c := cmp.Compare(a.Quality, b.Quality); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

// Unarchived returns the elements of found whose accounts are not archived.
// It modifies found in place.
func Unarchived(found []FoundAccount) []FoundAccount {
	return slice.Partition(found, func(fa FoundAccount) bool {
		return !fa.Account.Archived
	})
}

// PickBest reports whether there is a unique "best" match in a slice of found
// accounts, and if so returns that specific account. The accounts must be
// ordered in decreasing order of match quality.
func PickBest(found []FoundAccount) (FoundAccount, bool) {
	pos := 0
	for pos < len(found) {
		end := pos + 1
		for end < len(found) && found[end].Quality == found[pos].Quality {
			end++
		}
		if end-pos == 1 {
			return found[pos], true
		}
		pos = end
	}
	return FoundAccount{}, false
}

// FindAccount finds the unique account in f matching the specified query.
// An exact match for a label is preferred; otherwise FindAccount will look for
// a match on the issuer, or substrings of the title, name, and issuer. An
// error is reported if query matches no accounts, or more than one with no
// unique best match.  If all is true, all accounts are considered; otherwise
// archived accounts are skipped.
func FindAccount(f *File, query string, all bool) (FindResult, error) {
	found := FindAccounts(f.Accounts, query)
	if !all {
		found = Unarchived(found)
	}
	if len(found) == 0 {
		return FindResult{}, fmt.Errorf("no matches for %q", query)
	}
	if best, ok := PickBest(found); ok {
		return FindResult{Index: best.Index, Account: best.Account}, nil
	}

	// At this point there was no unique match, report a diagnostic error.
	var hits []string
	for _, fa := range found {
		hits = append(hits, fa.Account.Label)
		if len(hits) > 5 {
			hits = append(hits, "...")
			break
		}
	}
	return FindResult{}, fmt.Errorf("found %d matches for %q (%s)",
		len(found), query, strings.Join(hits, ", "))
}
