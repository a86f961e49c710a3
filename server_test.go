package chainlinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// setupServer starts a httptest.Server in front of a SQLite ledger seeded with
// links and returns the server's base URL. The server is closed when the test ends.
func setupServer(t *testing.T, links map[string]string) string {
	t.Helper()

	l, err := NewSQLiteLedger("file:"+filepath.Join(t.TempDir(), "ledger.sqlite")+"?_journal_mode=wal", DefaultChainID)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	for shortCode, longURL := range links {
		if _, err := l.SetURL(context.Background(), Account{Address: DevAddress}, shortCode, longURL); err != nil {
			t.Fatal(err)
		}
	}

	return startServer(t, l, time.Second)
}

func startServer(t *testing.T, l Ledger, timeout time.Duration) string {
	t.Helper()

	logger := zerolog.Nop()
	s := NewServer(NewResolver(l, Target{RPCURL: "http://127.0.0.1:8545", ContractAddress: "0xabc"}, timeout), Home{}, &logger)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return ts.URL
}

// make sure our HTTP client does not follow redirects, since we need to test for them
var client = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

type response struct {
	status   int
	location string
	body     string
}

func do(t *testing.T, method, url string) response {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("error during %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("error while reading response body: %v", err)
	}

	return response{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		body:     string(body),
	}
}

func decodeJSON(t *testing.T, body string) map[string]string {
	t.Helper()

	var m map[string]string
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("response %q is not a JSON object: %v", body, err)
	}
	return m
}

func TestResolverEndpoint(t *testing.T) {
	base := setupServer(t, map[string]string{
		"abc123": "openai.com",
		"plain":  "http://example.com/x",
		"secure": "https://example.com/y",
		"path":   "example.com/x",
		"a%41":   "percent.example",
		"aA":     "wrong.example",
		"a/b":    "slash.example",
	})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{"scheme is added", http.MethodGet, "/api/redirect/abc123", http.StatusOK, "url", "https://openai.com"},
		{"path is kept", http.MethodGet, "/api/redirect/path", http.StatusOK, "url", "https://example.com/x"},
		{"http is kept", http.MethodGet, "/api/redirect/plain", http.StatusOK, "url", "http://example.com/x"},
		{"https is kept", http.MethodGet, "/api/redirect/secure", http.StatusOK, "url", "https://example.com/y"},
		{"percent sign in short code", http.MethodGet, "/api/redirect/a%2541", http.StatusOK, "url", "https://percent.example"},
		{"escaped slash in short code", http.MethodGet, "/api/redirect/a%2Fb", http.StatusOK, "url", "https://slash.example"},
		{"query parameter", http.MethodGet, "/api/redirect?shortCode=abc123", http.StatusOK, "url", "https://openai.com"},
		{"unknown code", http.MethodGet, "/api/redirect/missing", http.StatusNotFound, "error", "URL not found"},
		{"missing query parameter", http.MethodGet, "/api/redirect", http.StatusNotFound, "error", "URL not found"},
		{"POST", http.MethodPost, "/api/redirect/abc123", http.StatusMethodNotAllowed, "error", "Method not allowed"},
		{"DELETE unknown code", http.MethodDelete, "/api/redirect/missing", http.StatusMethodNotAllowed, "error", "Method not allowed"},
		{"PUT query", http.MethodPut, "/api/redirect?shortCode=abc123", http.StatusMethodNotAllowed, "error", "Method not allowed"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp := do(t, test.method, base+test.path)
			if resp.status != test.wantStatus {
				t.Fatalf("expected status %d, but got %d (body %q)", test.wantStatus, resp.status, resp.body)
			}
			got := decodeJSON(t, resp.body)
			if got[test.wantKey] != test.wantValue {
				t.Errorf("expected %s %q, but got %q", test.wantKey, test.wantValue, got[test.wantKey])
			}
		})
	}
}

func TestRedirectGateway(t *testing.T) {
	base := setupServer(t, map[string]string{
		"abc123": "openai.com",
		"secure": "https://example.com/y",
		"a%41":   "percent.example",
		"aA":     "wrong.example",
		"a/b":    "slash.example",
	})

	t.Run("redirects", func(t *testing.T) {
		resp := do(t, http.MethodGet, base+"/abc123")
		if resp.status != http.StatusTemporaryRedirect {
			t.Fatalf("expected redirect (%d), but got %d", http.StatusTemporaryRedirect, resp.status)
		}
		if resp.location != "https://openai.com" {
			t.Errorf("expected Location header value 'https://openai.com', but got '%s'", resp.location)
		}
	})

	t.Run("keeps scheme", func(t *testing.T) {
		resp := do(t, http.MethodGet, base+"/secure")
		if resp.location != "https://example.com/y" {
			t.Errorf("expected Location header value 'https://example.com/y', but got '%s'", resp.location)
		}
	})

	t.Run("decodes short code once", func(t *testing.T) {
		tests := []struct {
			path, wantLocation string
		}{
			{"/a%2541", "https://percent.example"},
			{"/a%2Fb", "https://slash.example"},
			{"/aA", "https://wrong.example"},
		}
		for _, test := range tests {
			resp := do(t, http.MethodGet, base+test.path)
			if resp.status != http.StatusTemporaryRedirect {
				t.Errorf("%s: expected redirect (%d), but got %d", test.path, http.StatusTemporaryRedirect, resp.status)
				continue
			}
			if resp.location != test.wantLocation {
				t.Errorf("%s: expected Location header value '%s', but got '%s'", test.path, test.wantLocation, resp.location)
			}
		}
	})

	t.Run("renders error page for unknown code", func(t *testing.T) {
		resp := do(t, http.MethodGet, base+"/missing")
		if resp.status != http.StatusOK {
			t.Fatalf("expected status %d, but got %d", http.StatusOK, resp.status)
		}
		if resp.location != "" {
			t.Errorf("expected no redirect, but got Location '%s'", resp.location)
		}
		for _, want := range []string{"URL not found", "missing", `&#34;kind&#34;: &#34;NotFound&#34;`, "Go back home"} {
			if !strings.Contains(resp.body, want) {
				t.Errorf("expected error page to contain %q:\n%s", want, resp.body)
			}
		}
	})
}

func TestHomeAndHealth(t *testing.T) {
	base := setupServer(t, nil)

	if resp := do(t, http.MethodGet, base+"/healthz"); resp.status != http.StatusOK || resp.body != "ok" {
		t.Errorf("expected 200 ok from /healthz, got %d %q", resp.status, resp.body)
	}
	if resp := do(t, http.MethodGet, base+"/"); resp.status != http.StatusOK || !strings.Contains(resp.body, "chainlinks shorten") {
		t.Errorf("expected home page, got %d %q", resp.status, resp.body)
	}
}

type failingLedger struct{ err error }

func (f failingLedger) GetURL(ctx context.Context, shortCode string) (string, error) {
	return "", f.err
}

// blockingLedger never answers until the test ends.
type blockingLedger struct{ release chan struct{} }

func (b blockingLedger) GetURL(ctx context.Context, shortCode string) (string, error) {
	<-b.release
	return "too-late.com", nil
}

func TestServerFailures(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	tests := []struct {
		name        string
		ledger      Ledger
		wantKind    string
		wantMessage string
	}{
		{"not configured", nil, "ConfigurationError", "Missing environment configuration"},
		{"ledger unreachable", failingLedger{errors.New("connection refused")}, "UpstreamError", "Error retrieving URL"},
		{"ledger too slow", blockingLedger{release}, "UpstreamTimeout", "Error retrieving URL"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			base := startServer(t, test.ledger, 50*time.Millisecond)

			resp := do(t, http.MethodGet, base+"/api/redirect/abc123")
			if resp.status != http.StatusInternalServerError {
				t.Fatalf("expected status %d, but got %d", http.StatusInternalServerError, resp.status)
			}
			if got := decodeJSON(t, resp.body)["error"]; got != "Server error" {
				t.Errorf("expected error 'Server error', but got %q", got)
			}

			resp = do(t, http.MethodGet, base+"/abc123")
			if resp.status != http.StatusOK || resp.location != "" {
				t.Fatalf("expected error page, got status %d Location %q", resp.status, resp.location)
			}
			if !strings.Contains(resp.body, test.wantMessage) {
				t.Errorf("expected error page to contain %q:\n%s", test.wantMessage, resp.body)
			}
			if !strings.Contains(resp.body, test.wantKind) {
				t.Errorf("expected diagnostics to name %q:\n%s", test.wantKind, resp.body)
			}
		})
	}
}

func TestErrorPageEscaping(t *testing.T) {
	base := startServer(t, failingLedger{errors.New(`<b onclick="x()">bad gateway</b>`)}, time.Second)

	resp := do(t, http.MethodGet, base+"/%3Cscript%3Ealert(1)%3C%2Fscript%3E")
	if resp.status != http.StatusOK {
		t.Fatalf("expected status %d, but got %d", http.StatusOK, resp.status)
	}
	for _, unwanted := range []string{"<script>", "</script>", "<b ", "</b>"} {
		if strings.Contains(resp.body, unwanted) {
			t.Errorf("expected %q to be escaped in error page:\n%s", unwanted, resp.body)
		}
	}
	if !strings.Contains(resp.body, "&lt;script&gt;alert(1)&lt;/script&gt;") {
		t.Errorf("expected escaped short code in error page:\n%s", resp.body)
	}
	if !strings.Contains(resp.body, "bad gateway") {
		t.Errorf("expected ledger error in diagnostics:\n%s", resp.body)
	}
}

// brokenWriter fails every body write, like a client that went away.
type brokenWriter struct{ header http.Header }

func (b *brokenWriter) Header() http.Header         { return b.header }
func (b *brokenWriter) WriteHeader(status int)      {}
func (b *brokenWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteFailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	req := httptest.NewRequest(http.MethodGet, "/api/redirect/abc123", nil)
	req = req.WithContext(logger.WithContext(req.Context()))

	writeJSON(&brokenWriter{header: http.Header{}}, req, http.StatusOK, urlResponse{"https://openai.com"})
	if !strings.Contains(buf.String(), "could not write JSON response") || !strings.Contains(buf.String(), "broken pipe") {
		t.Errorf("expected JSON write failure to be logged, got %q", buf.String())
	}

	buf.Reset()
	healthz(&brokenWriter{header: http.Header{}}, req)
	if !strings.Contains(buf.String(), "could not write health response") {
		t.Errorf("expected health write failure to be logged, got %q", buf.String())
	}
}
