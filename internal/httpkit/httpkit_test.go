package httpkit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient()
	if c.Timeout != DefaultClientTimeout {
		t.Errorf("timeout = %v, want %v", c.Timeout, DefaultClientTimeout)
	}
}

func TestNewClient_CustomTimeout(t *testing.T) {
	c := NewClient(WithTimeout(5 * time.Second))
	if c.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.Timeout)
	}
}

func TestNewClient_ZeroTimeout(t *testing.T) {
	c := NewClient(WithTimeout(0))
	if c.Timeout != 0 {
		t.Errorf("timeout = %v, want 0 (disabled)", c.Timeout)
	}
}

func TestNewClient_SetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	resp, err := NewClient().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if !strings.HasPrefix(gotUA, "larder/") {
		t.Errorf("User-Agent = %q, want larder/ prefix", gotUA)
	}
}

func TestNewClient_ExistingUserAgentNotOverwritten(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("User-Agent", "custom-agent/1.0")

	resp, err := NewClient().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "custom-agent/1.0" {
		t.Errorf("User-Agent = %q, want custom-agent/1.0", gotUA)
	}
}

func TestNewClient_WithTransport(t *testing.T) {
	custom := NewTransport()
	custom.ResponseHeaderTimeout = 2 * time.Minute

	c := NewClient(WithTransport(custom))

	uat, ok := c.Transport.(*userAgentTransport)
	if !ok {
		t.Fatalf("transport is %T, want *userAgentTransport", c.Transport)
	}
	base, ok := uat.base.(*http.Transport)
	if !ok {
		t.Fatalf("base transport is %T", uat.base)
	}
	if base.ResponseHeaderTimeout != 2*time.Minute {
		t.Errorf("ResponseHeaderTimeout = %v, want 2m", base.ResponseHeaderTimeout)
	}
}

func TestNewTransport_HasTimeouts(t *testing.T) {
	tr := NewTransport()
	if tr.TLSHandshakeTimeout != DefaultTLSHandshakeTimeout {
		t.Errorf("TLSHandshakeTimeout = %v", tr.TLSHandshakeTimeout)
	}
	if tr.ResponseHeaderTimeout != DefaultResponseHeader {
		t.Errorf("ResponseHeaderTimeout = %v", tr.ResponseHeaderTimeout)
	}
	if tr.MaxIdleConnsPerHost != DefaultMaxIdleConnsPerHost {
		t.Errorf("MaxIdleConnsPerHost = %d", tr.MaxIdleConnsPerHost)
	}
	if !tr.ForceAttemptHTTP2 {
		t.Error("ForceAttemptHTTP2 not set")
	}
}

func TestDrainAndClose(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("some body content"))
	DrainAndClose(rc, 1024)
	DrainAndClose(nil, 1024)
}

func TestReadErrorBody(t *testing.T) {
	rc := io.NopCloser(strings.NewReader(`{"error": "bad request"}`))
	if got := ReadErrorBody(rc, 4096); got != `{"error": "bad request"}` {
		t.Errorf("body = %q", got)
	}
}

func TestReadErrorBody_Truncated(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("abcdefghij"))
	if got := ReadErrorBody(rc, 4); got != "abcd" {
		t.Errorf("body = %q, want abcd", got)
	}
}

func TestReadErrorBody_Nil(t *testing.T) {
	if got := ReadErrorBody(nil, 4096); got != "" {
		t.Errorf("body = %q, want empty", got)
	}
}
