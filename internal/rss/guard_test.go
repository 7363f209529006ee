package rss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/bryan-buckman/infovore/internal/feedworker"
)

func TestIsPublic(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:4700::1111", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
		{"100.64.0.1", false},
		{"224.0.0.1", false},
		{"::ffff:127.0.0.1", false},
		{"::ffff:8.8.8.8", true},
	}
	for _, tt := range tests {
		if got := isPublic(netip.MustParseAddr(tt.addr)); got != tt.want {
			t.Errorf("isPublic(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestGuardedClientRejectsLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	t.Cleanup(srv.Close)

	// The unguarded client reaches the test server; the guarded one must not.
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("unguarded GET: %v", err)
	}
	resp.Body.Close()

	_, err = GuardedClient(srv.Client()).Get(srv.URL)
	if !errors.Is(err, ErrForbiddenAddress) {
		t.Fatalf("expected ErrForbiddenAddress, got %v", err)
	}
}

func TestGuardedClientKeepsTimeout(t *testing.T) {
	if got := GuardedClient(nil).Timeout; got == 0 {
		t.Error("nil base should get a default timeout")
	}
	base := &http.Client{Timeout: 7}
	guarded := GuardedClient(base)
	if guarded.Timeout != 7 {
		t.Errorf("timeout = %v, want the base timeout", guarded.Timeout)
	}
	if base.Transport != nil {
		t.Error("base client must not be modified")
	}
}

func TestMirrorGuardedGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	t.Cleanup(srv.Close)

	m := NewMirror(10, "infovore-test", GuardedClient(srv.Client()))
	m.domainLimiter = newDomainLimiter(0)

	key, err := m.Normalize("url=" + srv.URL + "/feed.xml")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if _, err := m.Generate(context.Background(), key); !errors.Is(err, ErrForbiddenAddress) {
		t.Fatalf("expected ErrForbiddenAddress, got %v", err)
	}
}

func TestMirrorAllowedHosts(t *testing.T) {
	m := NewMirror(10, "", nil).AllowHosts("example.com", ".feeds.example.org")

	tests := []struct {
		raw     string
		allowed bool
	}{
		{"url=https://example.com/feed", true},
		{"url=https://EXAMPLE.com:8443/feed", true},
		{"url=https://feeds.example.org/a", true},
		{"url=https://blog.feeds.example.org/a", true},
		{"url=https://www.example.com/feed", false},
		{"url=https://evilexample.com/feed", false},
		{"url=https://notfeeds.example.org/a", false},
		{"url=http://169.254.169.254/latest", false},
		{"url=http://127.0.0.1/admin", false},
	}
	for _, tt := range tests {
		_, err := m.Normalize(tt.raw)
		if tt.allowed {
			if err != nil {
				t.Errorf("Normalize(%q): %v", tt.raw, err)
			}
			continue
		}
		var parseErr *feedworker.ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("Normalize(%q): expected ParseError, got %v", tt.raw, err)
		}
	}
}

func TestHostAllowedEmptyList(t *testing.T) {
	if !hostAllowed("anything.example", nil) {
		t.Error("an empty list allows every host")
	}
	if hostAllowed("example.com", []string{" ", ""}) {
		t.Error("blank entries must not allow every host")
	}
}
