package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClock(t *testing.T, servers ...string) *NetClock {
	t.Helper()
	clock := NewNetClock(newLogger(false))
	clock.servers = servers
	return clock
}

func TestNetClockSync(t *testing.T) {
	skew := 2 * time.Hour
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().Add(skew).UTC().Format(http.TimeFormat))
	}))
	defer server.Close()

	clock := testClock(t, server.URL)

	if clock.Synced() {
		t.Error("Fresh clock must not report synced")
	}

	if err := clock.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !clock.Synced() {
		t.Error("Clock must report synced after a successful sync")
	}

	// Date headers have second granularity, so allow a generous margin.
	drift := clock.Now().Sub(time.Now().Add(skew))
	if drift < -5*time.Second || drift > 5*time.Second {
		t.Errorf("Synced clock drifts %v from the server time", drift)
	}
}

func TestNetClockSyncAllServersDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // sync must fail against a closed listener

	clock := testClock(t, server.URL)
	if err := clock.Sync(); err == nil {
		t.Error("Expected sync error when no server is reachable")
	}
	if clock.Synced() {
		t.Error("Failed sync must not mark the clock synced")
	}
}

func TestServerOffsetMissingDateHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Date"] = nil
	}))
	defer server.Close()

	clock := testClock(t, server.URL)
	if _, err := clock.serverOffset(server.URL); err == nil {
		t.Error("Expected error for a response without a Date header")
	}
}

func TestNetClockNowBeforeSync(t *testing.T) {
	clock := testClock(t)

	drift := clock.Now().Sub(time.Now())
	if drift < -time.Second || drift > time.Second {
		t.Errorf("Unsynced clock should track local time, drifted %v", drift)
	}
}

func TestShouldResync(t *testing.T) {
	clock := testClock(t)

	if !clock.ShouldResync() {
		t.Error("Unsynced clock must want a resync")
	}

	clock.synced = true
	clock.lastSyncTime = time.Now()
	if clock.ShouldResync() {
		t.Error("Freshly synced clock must not want a resync")
	}

	clock.lastSyncTime = time.Now().Add(-2 * time.Hour)
	if !clock.ShouldResync() {
		t.Error("Stale clock must want a resync")
	}
}

func TestWaitUntilPastTarget(t *testing.T) {
	clock := testClock(t)

	start := time.Now()
	clock.WaitUntil(start.Add(-time.Minute))
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("WaitUntil on a past target took %v, expected an immediate return", elapsed)
	}
}
