// Package expiry provides a small mutex-guarded map of key -> (timestamp, ttl)
// used for cooldown bookkeeping and live-announcement dedup windows. Entries
// past their ttl are treated as absent and reclaimed by Sweep or a janitor.
package expiry

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	at  time.Time
	ttl time.Duration
}

// Map tracks per-key timestamps with an expiry. The zero value is not usable;
// call New.
type Map struct {
	mu      sync.Mutex
	entries map[string]entry
}

func New() *Map {
	return &Map{entries: make(map[string]entry)}
}

// Set records key at the given time, expiring after ttl.
func (m *Map) Set(key string, at time.Time, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = entry{at: at, ttl: ttl}
	m.mu.Unlock()
}

// Get returns the recorded timestamp for key, observed at now. Expired or
// missing entries report ok=false.
func (m *Map) Get(key string, now time.Time) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return time.Time{}, false
	}
	if now.Sub(e.at) >= e.ttl {
		delete(m.entries, key)
		return time.Time{}, false
	}
	return e.at, true
}

// Delete removes key unconditionally.
func (m *Map) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len returns the number of live entries (expired entries may still be
// counted until the next Sweep or Get).
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes all entries expired as of now and returns how many were removed.
func (m *Map) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if now.Sub(e.at) >= e.ttl {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps at the given interval until ctx is canceled.
func (m *Map) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(time.Now())
			}
		}
	}()
}
