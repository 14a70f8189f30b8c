package cmdcli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"

	"github.com/creachadair/authfish/aflib"
	"github.com/creachadair/authfish/cmd/af/config"
	"github.com/creachadair/authfish/otpcode"
	"github.com/creachadair/authfish/refresh"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"golang.org/x/term"
)

var watchCommand = &command.C{
	Name:  "watch",
	Usage: "[query ...]",
	Help: `Display continuously-refreshed TOTP codes.

With no queries, all unarchived TOTP accounts are shown; otherwise only
the accounts matching the queries. HOTP accounts are skipped, since their
codes do not change with time.

When stdout is a terminal, the display is redrawn in place; otherwise each
change is written as a separate line. If the accounts file changes, the
display is updated to match.`,
	SetFlags: command.Flags(flax.MustBind, &watchFlags),
	Run:      command.Adapt(runWatch),
}

var watchFlags struct {
	All bool `flag:"a,Include archived accounts"`
}

// runWatch implements the "watch" subcommand.
func runWatch(env *command.Env, queries ...string) error {
	w, err := config.WatchAccounts(env)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(env.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go w.Run(ctx)

	s := refresh.NewScheduler(nil)
	defer s.Close()

	ws := newWatchState(ctx, s, queries, &display{
		tty: term.IsTerminal(int(os.Stdout.Fd())),
		out: os.Stdout,
	})
	if err := ws.reload(w.File()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			if ws.disp.tty {
				fmt.Fprintln(ws.disp.out)
			}
			return nil
		case <-w.Changed():
			if err := ws.reload(w.File()); err != nil {
				log.Printf("WARNING: %v", err)
			}
		case u := <-ws.updates:
			ws.receive(u)
		}
	}
}

// watchState tracks the streams and display for the "watch" subcommand.
// Its methods must be called from a single goroutine.
type watchState struct {
	ctx     context.Context
	sched   *refresh.Scheduler
	queries []string
	disp    *display
	updates chan genUpdate

	gen  map[string]int // label → generation of its current stream
	next int            // the last generation assigned
}

// A genUpdate is an update tagged with the generation of its stream.
type genUpdate struct {
	gen int
	refresh.Update
}

func newWatchState(ctx context.Context, s *refresh.Scheduler, queries []string, d *display) *watchState {
	if d.latest == nil {
		d.latest = make(map[string]refresh.Update)
	}
	return &watchState{
		ctx:     ctx,
		sched:   s,
		queries: queries,
		disp:    d,
		updates: make(chan genUpdate),
		gen:     make(map[string]int),
	}
}

// reload restarts the streams for the accounts of f selected by the queries,
// and stops the streams for accounts that are no longer selected.  If the
// selection fails, the existing streams are left running.
func (ws *watchState) reload(f *aflib.File) error {
	srcs, err := selectAccounts(f, ws.queries)
	if err != nil {
		return err
	}
	for _, src := range srcs {
		ws.next++
		ws.gen[src.label] = ws.next
		ch := ws.sched.Activate(ws.ctx, src.label, src.Source)
		go forward(ws.ctx, ch, ws.next, ws.updates)
	}
	for _, gone := range ws.sched.Retain(func(label string) bool { return hasLabel(srcs, label) }) {
		delete(ws.gen, gone)
		delete(ws.disp.latest, gone)
	}
	ws.disp.titles = make(map[string]string)
	for _, src := range srcs {
		ws.disp.titles[src.label] = src.title
	}
	ws.disp.render()
	return nil
}

// receive displays u and reports true, unless u comes from a stream that has
// since been replaced or removed, in which case it reports false.
func (ws *watchState) receive(u genUpdate) bool {
	if cur, ok := ws.gen[u.Account]; !ok || cur != u.gen {
		return false
	}
	ws.disp.latest[u.Account] = u.Update
	ws.disp.update(u.Update)
	return true
}

// forward copies updates from ch to out, tagged with gen, until ch closes or
// ctx ends.
func forward(ctx context.Context, ch <-chan refresh.Update, gen int, out chan<- genUpdate) {
	for u := range ch {
		select {
		case out <- genUpdate{gen: gen, Update: u}:
		case <-ctx.Done():
			return
		}
	}
}

type watchSource struct {
	refresh.Source
	label, title string
}

func hasLabel(srcs []watchSource, label string) bool {
	return slices.ContainsFunc(srcs, func(w watchSource) bool { return w.label == label })
}

// selectAccounts returns refresh sources for the TOTP accounts of f selected
// by queries. Each query must match an account.
func selectAccounts(f *aflib.File, queries []string) ([]watchSource, error) {
	var accts []*aflib.Account
	if len(queries) == 0 {
		for _, a := range f.Accounts {
			if watchFlags.All || !a.Archived {
				accts = append(accts, a)
			}
		}
	} else {
		for _, q := range queries {
			res, err := aflib.FindAccount(f, q, watchFlags.All)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(accts, res.Account) {
				accts = append(accts, res.Account)
			}
		}
	}

	var out []watchSource
	for _, a := range accts {
		c, err := f.Config(a)
		if err != nil {
			log.Printf("WARNING: Skipping account %q: %v", a.Label, err)
			continue
		} else if c.Type != "totp" {
			continue
		}
		out = append(out, watchSource{
			Source: refresh.Source{Secret: c.Secret, Params: c.Params},
			label:  a.Label,
			title:  a.DisplayName(),
		})
	}
	return out, nil
}

// display renders the most recent update for each watched account.
type display struct {
	tty    bool
	out    io.Writer
	titles map[string]string         // label → display name
	latest map[string]refresh.Update // label → most recent update
}

// update reports the arrival of u.
func (d *display) update(u refresh.Update) {
	if d.tty {
		d.render()
		return
	}
	fmt.Fprintf(d.out, "%s\t%s\n", u.Account, formatUpdate(u))
}

// render redraws the full display. It does nothing unless the output is a
// terminal.
func (d *display) render() {
	if !d.tty {
		return
	}
	labels := make([]string, 0, len(d.titles))
	for label := range d.titles {
		labels = append(labels, label)
	}
	slices.Sort(labels)

	fmt.Fprint(d.out, "\033[H\033[2J") // home, clear screen
	tw := tabwriter.NewWriter(d.out, 4, 0, 2, ' ', 0)
	for _, label := range labels {
		status := "…"
		if u, ok := d.latest[label]; ok {
			status = formatUpdate(u)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\r\n", label, d.titles[label], status)
	}
	tw.Flush()
}

func formatUpdate(u refresh.Update) string {
	if u.Failed() {
		switch otpcode.Kind(u.Err) {
		case otpcode.ErrInvalidSecret:
			return "<invalid secret>"
		case otpcode.ErrUnableToGenerate:
			return "<unable to generate>"
		default:
			return "<error>"
		}
	}
	return fmt.Sprintf("%s (%2ds)", u.Password.Code, u.Password.Remaining)
}
