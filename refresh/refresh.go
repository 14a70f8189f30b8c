// Package refresh publishes a stream of one-time passwords for an account,
// recomputing the current code on a fixed cadence so that a display can show
// a live countdown.
//
// A stream computes the code immediately when it starts, and again on every
// tick of its interval. Consecutive results that are identical are
// suppressed, so a consumer sees at most one update per second of countdown
// regardless of the tick rate. Failures are delivered as updates carrying an
// error, and do not end the stream.
package refresh

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/creachadair/authfish/otpcode"
)

// DefaultInterval is the default tick interval for a stream. It is shorter
// than one second so that the displayed countdown does not lag.
const DefaultInterval = 500 * time.Millisecond

// A Source describes the codes to publish for a single account.
type Source struct {
	Secret string         // base32-encoded shared secret
	Params otpcode.Params // generation parameters
}

// An Update is a single value published on a stream.  Exactly one of
// Password and Err is meaningful: if Err != nil, Password is zero.
type Update struct {
	Account  string           // the account label
	Password otpcode.Password // the current code, if Err == nil
	Err      error            // the reason generation failed, or nil
}

// Failed reports whether u carries an error rather than a code.
func (u Update) Failed() bool { return u.Err != nil }

// sameAs reports whether u and v would present identically to a consumer:
// either both carry the same code and countdown, or both failed for the same
// kind of reason.
func (u Update) sameAs(v Update) bool {
	if u.Account != v.Account {
		return false
	} else if u.Err != nil || v.Err != nil {
		return otpcode.Kind(u.Err) == otpcode.Kind(v.Err)
	}
	return u.Password == v.Password
}

// Options control the behaviour of streams. A nil *Options is ready for use
// and provides default values.
type Options struct {
	// Interval is the period between recomputations. If zero or negative,
	// DefaultInterval is used.
	Interval time.Duration

	// Now reports the current time. If nil, time.Now is used.
	Now func() time.Time

	// Logf, if set, is used to log recovered failures. If nil, log.Printf is
	// used.
	Logf func(msg string, args ...any)
}

func (o *Options) interval() time.Duration {
	if o == nil || o.Interval <= 0 {
		return DefaultInterval
	}
	return o.Interval
}

func (o *Options) now() time.Time {
	if o == nil || o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Options) logf(msg string, args ...any) {
	if o == nil || o.Logf == nil {
		log.Printf(msg, args...)
	} else {
		o.Logf(msg, args...)
	}
}

// Subscribe starts a stream of updates for src, and returns a channel that
// delivers them. The stream runs until ctx ends, after which the channel is
// closed. The channel is unbuffered, and the stream does not tick while an
// update is waiting to be received.
//
// Subscribe is the building block for a Scheduler; use the Scheduler to keep
// at most one stream per account.
func Subscribe(ctx context.Context, account string, src Source, opts *Options) <-chan Update {
	s := newStream(account, src, opts)
	go s.run(ctx, nil)
	return s.out
}

// A stream computes and publishes updates for one account.
type stream struct {
	account string
	params  otpcode.Params
	key     []byte // decoded secret, nil if err != nil
	err     error  // secret decoding error, permanent for this stream
	opts    *Options
	out     chan Update
}

func newStream(account string, src Source, opts *Options) *stream {
	// Decode the secret once; it does not change for the life of the stream.
	key, err := otpcode.DecodeSecret(src.Secret)
	return &stream{
		account: account,
		params:  src.Params,
		key:     key,
		err:     err,
		opts:    opts,
		out:     make(chan Update),
	}
}

// run publishes updates to s.out until ctx ends. When run returns, s.out is
// closed, and then done (if non-nil) is closed.
func (s *stream) run(ctx context.Context, done chan<- struct{}) {
	if done != nil {
		defer close(done)
	}
	defer close(s.out)

	tick := time.NewTicker(s.opts.interval())
	defer tick.Stop()

	var last Update
	var sent bool
	for {
		if ctx.Err() != nil {
			return
		}
		if u := s.compute(); !sent || !u.sameAs(last) {
			select {
			case <-ctx.Done():
				return
			case s.out <- u:
				last, sent = u, true
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// compute generates the update for the current time. A panic during
// generation is reported as an ErrUnrecognized update.
func (s *stream) compute() (u Update) {
	defer func() {
		if x := recover(); x != nil {
			s.opts.logf("WARNING: Generating code for %q: recovered: %v", s.account, x)
			u = Update{Account: s.account, Err: fmt.Errorf("%w: %v", otpcode.ErrUnrecognized, x)}
		}
	}()
	if s.err != nil {
		return Update{Account: s.account, Err: s.err}
	}
	pw, err := otpcode.TOTP(s.key, s.opts.now().Unix(), s.params)
	if err != nil {
		return Update{Account: s.account, Err: err}
	}
	return Update{Account: s.account, Password: pw}
}
