package cmdserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/authfish/aflib"
	"github.com/creachadair/authfish/otpcode"
	"github.com/creachadair/authfish/refresh"
	"github.com/creachadair/mds/slice"
)

// API implements the HTTP endpoints for the authfish server.
type API struct {
	// Accounts returns the active accounts file to serve.
	Accounts func() *aflib.File

	// Now, if set, reports the current time. If nil, time.Now is used.
	Now func() time.Time

	// Stream are the options used for code streams. If nil, defaults are used.
	Stream *refresh.Options
}

// ServeMux returns a router for the API endpoints:
//
//	GET /accounts       -- list accounts matching an optional query (q)
//	GET /code/{label}   -- serve the current code for an account
//	GET /stream/{label} -- serve a stream of codes for a TOTP account
func (a API) ServeMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /accounts", addCSP(a.accounts))
	mux.HandleFunc("GET /code/{label}", addCSP(a.code))
	mux.HandleFunc("GET /stream/{label}", addCSP(a.stream))
	return mux
}

func (a API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// accountInfo is the JSON representation of an account listing.
type accountInfo struct {
	Label  string `json:"label"`
	Title  string `json:"title,omitempty"`
	Issuer string `json:"issuer,omitempty"`
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"`
}

// codeInfo is the JSON representation of a generated code.
type codeInfo struct {
	Label string `json:"label"`
	otpcode.Password
}

// errorInfo is the JSON representation of a generation failure.
type errorInfo struct {
	Error string `json:"error"`
}

// accounts serves a listing of unarchived accounts.
func (a API) accounts(w http.ResponseWriter, r *http.Request) {
	f := a.Accounts()
	query := strings.TrimSpace(r.FormValue("q"))
	found := slice.Partition(aflib.FindAccounts(f.Accounts, query), func(fa aflib.FoundAccount) bool {
		return !fa.Account.Archived
	})
	out := make([]accountInfo, 0, len(found))
	for _, fa := range found {
		info := accountInfo{
			Label:  fa.Account.Label,
			Title:  fa.Account.Title,
			Issuer: fa.Account.Issuer,
			Name:   fa.Account.Name,
		}
		if c, err := f.Config(fa.Account); err == nil {
			info.Type = c.Type
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// code serves the current code for a single account. The optional shift
// parameter moves the time step (or counter) by that many steps.
func (a API) code(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	c, ok := a.config(w, label)
	if !ok {
		return
	}
	var shift int
	if s := r.FormValue("shift"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid shift", http.StatusBadRequest)
			return
		}
		shift = v
	}
	pw, err := aflib.GenerateCode(c, a.now(), shift)
	if err != nil {
		writeJSON(w, errorStatus(err), errorInfo{Error: errorKind(err)})
		return
	}
	writeJSON(w, http.StatusOK, codeInfo{Label: label, Password: pw})
}

// stream serves a stream of server-sent events for a single TOTP account.
// Each code is sent as a "code" event, and each failure as an "error" event.
// The stream runs until the client disconnects.
func (a API) stream(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	c, ok := a.config(w, label)
	if !ok {
		return
	} else if c.Type != "totp" {
		http.Error(w, "account is not time-based", http.StatusBadRequest)
		return
	}
	flush, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flush.Flush()

	opts := a.Stream
	if opts == nil && a.Now != nil {
		opts = &refresh.Options{Now: a.Now}
	}
	src := refresh.Source{Secret: c.Secret, Params: c.Params}
	for u := range refresh.Subscribe(r.Context(), label, src, opts) {
		var err error
		if u.Failed() {
			err = writeEvent(w, "error", errorInfo{Error: errorKind(u.Err)})
		} else {
			err = writeEvent(w, "code", codeInfo{Label: label, Password: u.Password})
		}
		if err != nil {
			log.Printf("WARNING: Stream %q: %v", label, err)
			return
		}
		flush.Flush()
	}
}

// config resolves the configuration for label. If that fails, it writes an
// error response to w and returns false.
func (a API) config(w http.ResponseWriter, label string) (aflib.Config, bool) {
	f := a.Accounts()
	acct := f.Lookup(label)
	if acct == nil {
		http.Error(w, "no such account", http.StatusNotFound)
		return aflib.Config{}, false
	}
	c, err := f.Config(acct)
	if err != nil {
		writeJSON(w, errorStatus(err), errorInfo{Error: err.Error()})
		return aflib.Config{}, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// errorKind returns a short description of the kind of err.
func errorKind(err error) string { return otpcode.Kind(err).Error() }

// errorStatus returns an HTTP status code for a generation failure.
func errorStatus(err error) int {
	if errors.Is(err, otpcode.ErrInvalidSecret) || errors.Is(err, otpcode.ErrUnableToGenerate) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// contentSecurityPolicy is the CSP header we send to client browsers.
var contentSecurityPolicy = strings.Join([]string{
	`base-uri 'self'`,
	`block-all-mixed-content`,
	`default-src 'self'`,
	`form-action 'self'`,
	`frame-ancestors 'none'`,
}, "; ")

func addCSP(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", contentSecurityPolicy)
		h.ServeHTTP(w, r)
	}
}
