package cmdserver_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creachadair/authfish/aflib"
	"github.com/creachadair/authfish/cmd/af/internal/cmdserver"
	gocmp "github.com/google/go-cmp/cmp"
)

const testAccounts = `
accounts:
  - {label: rfc, title: RFC 6238, secret: GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ, digits: 8}
  - {label: hotp, otp: "otpauth://hotp/Test:bob?secret=GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ&counter=1"}
  - {label: bad, secret: "1189"}
  - {label: gone, secret: JBSWY3DPEHPK3PXP, archived: true}
`

func newAPI(t *testing.T) cmdserver.API {
	t.Helper()
	f, err := aflib.ParseFile([]byte(testAccounts))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return cmdserver.API{
		Accounts: func() *aflib.File { return f },
		Now:      func() time.Time { return time.Unix(59, 0) },
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestAccounts(t *testing.T) {
	mux := newAPI(t).ServeMux()
	rec := get(t, mux, "/accounts")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /accounts: got status %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("GET /accounts: missing CSP header")
	}

	type info struct{ Label, Type string }
	var got []info
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	want := []info{{"rfc", "totp"}, {"hotp", "hotp"}, {"bad", "totp"}}
	if diff := gocmp.Diff(got, want); diff != "" {
		t.Errorf("GET /accounts (-got, +want):\n%s", diff)
	}
}

func TestCode(t *testing.T) {
	mux := newAPI(t).ServeMux()
	tests := []struct {
		path string
		code int
		body string
	}{
		{"/code/rfc", http.StatusOK, `{"label":"rfc","code":"94287082","remaining":1}`},
		{"/code/rfc?shift=-1", http.StatusOK, `{"label":"rfc","code":"84755224","remaining":1}`},
		{"/code/hotp", http.StatusOK, `{"label":"hotp","code":"287082","remaining":0}`},
		{"/code/hotp?shift=2", http.StatusOK, `{"label":"hotp","code":"969429","remaining":0}`},
		{"/code/bad", http.StatusUnprocessableEntity, `{"error":"invalid secret"}`},
		{"/code/hotp?shift=-2", http.StatusUnprocessableEntity, `{"error":"unable to generate code"}`},
		{"/code/rfc?shift=9223372036854775807", http.StatusUnprocessableEntity, `{"error":"unable to generate code"}`},
		{"/code/rfc?shift=-9223372036854775808", http.StatusUnprocessableEntity, `{"error":"unable to generate code"}`},
		{"/code/rfc?shift=x", http.StatusBadRequest, ""},
		{"/code/nonesuch", http.StatusNotFound, ""},
	}
	for _, tc := range tests {
		rec := get(t, mux, tc.path)
		if rec.Code != tc.code {
			t.Errorf("GET %s: got status %d, want %d", tc.path, rec.Code, tc.code)
			continue
		}
		if tc.body == "" {
			continue
		}
		if got := strings.TrimSpace(rec.Body.String()); got != tc.body {
			t.Errorf("GET %s: got %s, want %s", tc.path, got, tc.body)
		}
	}
}

// readEvent reads a single server-sent event from r.
func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return event, data
		}
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		} else if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
		}
	}
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(newAPI(t).ServeMux())
	defer srv.Close()

	tests := []struct {
		label, event, data string
	}{
		{"rfc", "code", `{"label":"rfc","code":"94287082","remaining":1}`},
		{"bad", "error", `{"error":"invalid secret"}`},
	}
	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/stream/"+tc.label, nil)
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			rsp, err := srv.Client().Do(req)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer rsp.Body.Close()
			if ct := rsp.Header.Get("Content-Type"); ct != "text/event-stream" {
				t.Errorf("Content-Type: got %q, want text/event-stream", ct)
			}
			event, data := readEvent(t, bufio.NewReader(rsp.Body))
			if event != tc.event || data != tc.data {
				t.Errorf("Event: got (%q, %s), want (%q, %s)", event, data, tc.event, tc.data)
			}
		})
	}

	// HOTP accounts do not stream.
	rsp, err := srv.Client().Get(srv.URL + "/stream/hotp")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	rsp.Body.Close()
	if rsp.StatusCode != http.StatusBadRequest {
		t.Errorf("GET /stream/hotp: got status %d, want %d", rsp.StatusCode, http.StatusBadRequest)
	}
}
