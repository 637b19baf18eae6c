package main

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

func TestCookieConversionRoundTrip(t *testing.T) {
	original := []Cookie{
		{
			Name:     "MOD_AUTH_CAS",
			Value:    "ticket-abc123",
			Domain:   "ehall.szu.edu.cn",
			Path:     "/",
			Expires:  1.7e9,
			Secure:   true,
			HTTPOnly: true,
		},
		{
			Name:   "session-cookie",
			Value:  "v",
			Domain: "ehall.szu.edu.cn",
			Path:   "/app",
		},
	}

	params := cookieParams(original)
	if len(params) != len(original) {
		t.Fatalf("Expected %d params, got %d", len(original), len(params))
	}

	network := make([]*proto.NetworkCookie, 0, len(params))
	for _, p := range params {
		network = append(network, &proto.NetworkCookie{
			Name:     p.Name,
			Value:    p.Value,
			Domain:   p.Domain,
			Path:     p.Path,
			Expires:  p.Expires,
			Secure:   p.Secure,
			HTTPOnly: p.HTTPOnly,
		})
	}

	roundTripped := fromNetworkCookies(network)
	if len(roundTripped) != len(original) {
		t.Fatalf("Expected %d cookies, got %d", len(original), len(roundTripped))
	}
	for i, c := range roundTripped {
		if c != original[i] {
			t.Errorf("Cookie %d changed through conversion:\n got %+v\nwant %+v", i, c, original[i])
		}
	}
}

func TestCookieParamsZeroExpiry(t *testing.T) {
	params := cookieParams([]Cookie{{Name: "n", Value: "v", Domain: "d", Path: "/"}})

	if len(params) != 1 {
		t.Fatalf("Expected 1 param, got %d", len(params))
	}
	if float64(params[0].Expires) != 0 {
		t.Errorf("Zero expiry should stay zero, got %v", params[0].Expires)
	}
}

func TestNewSessionWiring(t *testing.T) {
	config := DefaultConfig()
	store := NewMemoryStore()

	session := NewSession(config, store, newLogger(false))
	if session == nil {
		t.Fatal("NewSession returned nil")
	}
	if session.config != config {
		t.Error("Config not wired into Session")
	}
	if session.store != store {
		t.Error("Store not wired into Session")
	}
	if session.Page() != nil {
		t.Error("Page must be nil before Establish")
	}

	// Close before Establish must be safe; every command defers it.
	session.Close()
}

func TestSessionAliveWithoutBrowser(t *testing.T) {
	session := NewSession(DefaultConfig(), NewMemoryStore(), newLogger(false))

	if session.alive() {
		t.Error("Session without a browser must not report alive")
	}
}
