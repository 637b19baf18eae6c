package main

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// NetClock estimates true wall-clock time from HTTP Date headers so the
// release wait does not depend on the local clock being right.
type NetClock struct {
	offset       time.Duration
	lastSyncTime time.Time
	synced       bool
	log          *zap.SugaredLogger
	servers      []string
}

func NewNetClock(log *zap.SugaredLogger) *NetClock {
	return &NetClock{
		log: log,
		servers: []string{
			"https://www.google.com",
			"https://www.cloudflare.com",
			"https://www.amazon.com",
		},
	}
}

// Sync averages the offset over the reachable servers. At least one must
// answer for the sync to count.
func (c *NetClock) Sync() error {
	var totalOffset time.Duration
	successCount := 0

	for _, server := range c.servers {
		offset, err := c.serverOffset(server)
		if err != nil {
			c.log.Debugw("time server unreachable", "server", server, "error", err)
			continue
		}
		totalOffset += offset
		successCount++
	}

	if successCount == 0 {
		return fmt.Errorf("failed to sync time with any server")
	}

	c.offset = totalOffset / time.Duration(successCount)
	c.lastSyncTime = time.Now()
	c.synced = true

	c.log.Debugw("clock synchronized", "offset", c.offset, "servers", successCount)
	return nil
}

func (c *NetClock) serverOffset(url string) (time.Duration, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	beforeRequest := time.Now()

	req, err := http.NewRequest("HEAD", url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	afterRequest := time.Now()

	dateHeader := resp.Header.Get("Date")
	if dateHeader == "" {
		return 0, fmt.Errorf("no Date header in response")
	}

	serverTime, err := http.ParseTime(dateHeader)
	if err != nil {
		return 0, fmt.Errorf("failed to parse Date header: %w", err)
	}

	// Approximate one-way latency as half the round trip.
	latency := afterRequest.Sub(beforeRequest) / 2
	localTime := beforeRequest.Add(latency)

	return serverTime.Sub(localTime), nil
}

// Now returns the synchronized time, or local time before the first
// successful sync.
func (c *NetClock) Now() time.Time {
	if !c.synced {
		return time.Now()
	}
	return time.Now().Add(c.offset)
}

func (c *NetClock) Synced() bool { return c.synced }

func (c *NetClock) ShouldResync() bool {
	if !c.synced {
		return true
	}
	return time.Since(c.lastSyncTime) > 1*time.Hour
}

// WaitUntil sleeps until target, logging progress and resyncing the
// clock when it goes stale during long dormant waits.
func (c *NetClock) WaitUntil(target time.Time) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		remaining := target.Sub(c.Now())
		if remaining <= 0 {
			return
		}
		if remaining < 30*time.Second {
			time.Sleep(remaining)
			return
		}

		<-ticker.C

		if c.ShouldResync() {
			if err := c.Sync(); err != nil {
				c.log.Warnw("clock resync failed", "error", err)
			}
		}

		if remaining = target.Sub(c.Now()); remaining > 0 {
			c.log.Infow("waiting for release window", "remaining", remaining.Round(time.Second))
		}
	}
}
