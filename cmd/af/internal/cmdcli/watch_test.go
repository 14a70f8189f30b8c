package cmdcli

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/creachadair/authfish/aflib"
	"github.com/creachadair/authfish/otpcode"
	"github.com/creachadair/authfish/refresh"
	"github.com/creachadair/mds/mtest"
	gocmp "github.com/google/go-cmp/cmp"
)

const testAccounts = `
accounts:
  - {label: mail, title: Example Mail, secret: JBSWY3DPEHPK3PXP}
  - {label: bank, issuer: Bank, secret: GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ, digits: 8, period: 60}
  - {label: door, otp: "otpauth://hotp/Door:me?secret=JBSWY3DPEHPK3PXP&counter=5"}
  - {label: bogus, secret: JBSWY3DPEHPK3PXP, algorithm: MD5}
  - {label: attic, title: Old Mail, secret: JBSWY3DPEHPK3PXP, archived: true}
`

func labelsOf(srcs []watchSource) []string {
	var out []string
	for _, s := range srcs {
		out = append(out, s.label)
	}
	return out
}

func TestSelectAccounts(t *testing.T) {
	f, err := aflib.ParseFile([]byte(testAccounts))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	check := func(queries []string, want []string) {
		t.Helper()
		srcs, err := selectAccounts(f, queries)
		if err != nil {
			t.Fatalf("selectAccounts(%q): unexpected error: %v", queries, err)
		}
		if diff := gocmp.Diff(labelsOf(srcs), want); diff != "" {
			t.Errorf("selectAccounts(%q) (-got, +want):\n%s", queries, diff)
		}
	}

	// HOTP and misconfigured accounts are skipped, as are archived ones.
	check(nil, []string{"mail", "bank"})
	check([]string{"bank", "mail", "bank"}, []string{"bank", "mail"})
	check([]string{"door"}, nil)

	if srcs, err := selectAccounts(f, []string{"nonesuch"}); err == nil {
		t.Errorf("selectAccounts(nonesuch): got %q, want error", labelsOf(srcs))
	}

	mtest.Swap(t, &watchFlags.All, true)
	check(nil, []string{"mail", "bank", "attic"})

	srcs, err := selectAccounts(f, []string{"bank"})
	if err != nil {
		t.Fatalf("selectAccounts(bank): unexpected error: %v", err)
	}
	want := otpcode.Params{Algorithm: otpcode.SHA1, Digits: 8, TimeStep: 60}
	if got := srcs[0].Params; got != want {
		t.Errorf("Params: got %+v, want %+v", got, want)
	}
	if got := srcs[0].title; got != "Bank" {
		t.Errorf("Title: got %q, want Bank", got)
	}
}

func TestDisplay(t *testing.T) {
	var buf strings.Builder
	d := &display{out: &buf, latest: make(map[string]refresh.Update)}
	d.update(refresh.Update{Account: "mail", Password: otpcode.Password{Code: "123456", Remaining: 7}})
	d.update(refresh.Update{Account: "bad", Err: otpcode.ErrInvalidSecret})
	d.update(refresh.Update{Account: "odd", Err: errors.New("whatever")})
	d.render() // no effect without a terminal

	const want = "mail\t123456 ( 7s)\nbad\t<invalid secret>\nodd\t<error>\n"
	if got := buf.String(); got != want {
		t.Errorf("Display output:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestWatchReload(t *testing.T) {
	const (
		oldSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
		newSecret = "JBSWY3DPEHPK3PXP"
	)
	now := time.Unix(59, 0)
	codeFor := func(secret string) string {
		t.Helper()
		pw, err := otpcode.Compute(secret, otpcode.DefaultParams, now)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		return pw.Code
	}
	oldCode, newCode := codeFor(oldSecret), codeFor(newSecret)
	if oldCode == newCode {
		t.Fatalf("Test secrets have the same code %q", oldCode)
	}

	before, err := aflib.ParseFile([]byte(`
accounts:
  - {label: mail, secret: ` + oldSecret + `}
  - {label: bank, secret: ` + oldSecret + `}
`))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	after, err := aflib.ParseFile([]byte(`
accounts:
  - {label: mail, secret: ` + newSecret + `}
  - {label: door, secret: ` + newSecret + `}
`))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := refresh.NewScheduler(&refresh.Options{
		Interval: time.Millisecond,
		Now:      func() time.Time { return now },
	})
	defer s.Close()

	var buf strings.Builder
	ws := newWatchState(ctx, s, nil, &display{out: &buf})
	if err := ws.reload(before); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if diff := gocmp.Diff(s.Active(), []string{"bank", "mail"}); diff != "" {
		t.Errorf("Active before (-got, +want):\n%s", diff)
	}

	// Leave the first updates undelivered, so they are still in flight when
	// the streams are replaced.
	if err := ws.reload(after); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if diff := gocmp.Diff(s.Active(), []string{"door", "mail"}); diff != "" {
		t.Errorf("Active after (-got, +want):\n%s", diff)
	}

	timeout := time.After(5 * time.Second)
	for ws.disp.latest["mail"].Password.Code == "" || ws.disp.latest["door"].Password.Code == "" {
		select {
		case u := <-ws.updates:
			if ws.receive(u) && u.Password.Code != newCode {
				t.Errorf("Applied stale update %+v", u.Update)
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for updates; latest: %+v", ws.disp.latest)
		}
	}
	if _, ok := ws.disp.latest["bank"]; ok {
		t.Error("Removed account bank is still displayed")
	}
	if got := ws.disp.latest["mail"].Password.Code; got != newCode {
		t.Errorf("Code for mail: got %q, want %q", got, newCode)
	}

	// Updates from replaced streams are rejected even if they arrive late.
	if ws.receive(genUpdate{gen: 1, Update: refresh.Update{Account: "mail"}}) {
		t.Error("Update from a replaced stream was accepted")
	}
	if ws.receive(genUpdate{gen: 2, Update: refresh.Update{Account: "bank"}}) {
		t.Error("Update from a removed stream was accepted")
	}
}
