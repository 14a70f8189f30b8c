package refresh

import (
	"context"
	"slices"
	"sync"
)

// A Scheduler manages streams for a collection of accounts, keeping at most
// one active stream per account. The methods of a Scheduler are safe for
// concurrent use.
type Scheduler struct {
	opts *Options

	μ      sync.Mutex
	active map[string]*subscription
}

type subscription struct {
	cancel context.CancelFunc
	done   <-chan struct{} // closed when the stream has exited
}

// stop terminates the stream and blocks until it has exited.
func (s *subscription) stop() {
	s.cancel()
	<-s.done
}

// exited reports whether the stream has already stopped on its own, e.g.,
// because its parent context ended.
func (s *subscription) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// NewScheduler constructs a new, empty scheduler. A nil opts is valid and
// provides default settings for all streams.
func NewScheduler(opts *Options) *Scheduler {
	return &Scheduler{opts: opts, active: make(map[string]*subscription)}
}

// Activate starts a stream of updates for account and returns its channel.
// If a stream for account is already active, it is stopped first (and its
// channel closed) before the new stream begins, so there is never more than
// one stream per account.
//
// The stream runs until it is deactivated, the scheduler is closed, or ctx
// ends. In all cases the channel is closed when the stream stops.
func (s *Scheduler) Activate(ctx context.Context, account string, src Source) <-chan Update {
	s.μ.Lock()
	defer s.μ.Unlock()
	if old, ok := s.active[account]; ok {
		old.stop()
	}

	sctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	st := newStream(account, src, s.opts)
	s.active[account] = &subscription{cancel: cancel, done: done}
	go st.run(sctx, done)
	return st.out
}

// Deactivate stops the stream for account, if one is active. When Deactivate
// returns, the stream has exited, its channel is closed, and no further
// updates will be delivered for it.  Deactivating an account that is not
// active is a no-op.
func (s *Scheduler) Deactivate(account string) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if sub, ok := s.active[account]; ok {
		sub.stop()
		delete(s.active, account)
	}
}

// IsActive reports whether a stream for account is currently running.
func (s *Scheduler) IsActive(account string) bool {
	s.μ.Lock()
	defer s.μ.Unlock()
	sub, ok := s.active[account]
	return ok && !sub.exited()
}

// Active returns the labels of all accounts with a running stream, in
// lexicographic order.
func (s *Scheduler) Active() []string {
	s.μ.Lock()
	defer s.μ.Unlock()
	var out []string
	for acct, sub := range s.active {
		if !sub.exited() {
			out = append(out, acct)
		}
	}
	slices.Sort(out)
	return out
}

// Retain deactivates every account for which keep reports false, and returns
// the labels of the accounts that were deactivated, in lexicographic order.
func (s *Scheduler) Retain(keep func(account string) bool) []string {
	s.μ.Lock()
	defer s.μ.Unlock()
	var drop []string
	for acct, sub := range s.active {
		if !keep(acct) {
			sub.stop()
			delete(s.active, acct)
			drop = append(drop, acct)
		}
	}
	slices.Sort(drop)
	return drop
}

// Close deactivates all active streams. The scheduler remains usable after
// Close returns.
func (s *Scheduler) Close() {
	s.Retain(func(string) bool { return false })
}
