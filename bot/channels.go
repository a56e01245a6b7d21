package bot

import (
	"sort"
	"strings"
	"sync"
)

// ChannelEntry is the configured membership and per-channel feature flags for
// one chat channel. The zero LiveMessage selects a pool template.
type ChannelEntry struct {
	Name            string `json:"name"`
	Enabled         bool   `json:"enabled"`
	RelaySync       bool   `json:"relay_sync"`
	RelayChannelRef string `json:"relay_channel_ref,omitempty"`
	LiveEnabled     bool   `json:"live_enabled"`
	LiveMessage     string `json:"live_message,omitempty"`
}

// DefaultChannelEntry returns an entry with operator-facing defaults: enabled,
// live announcements on, pool-selected template.
func DefaultChannelEntry(name string) ChannelEntry {
	return ChannelEntry{Name: NormalizeChannel(name), Enabled: true, LiveEnabled: true}
}

// NormalizeChannel lowercases and strips the IRC '#' prefix.
func NormalizeChannel(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

// ChannelRegistry holds configured channel membership, guarded by one mutex.
// Channels are only removed by explicit operator action, never by the bot.
type ChannelRegistry struct {
	mu      sync.RWMutex
	entries map[string]ChannelEntry
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{entries: make(map[string]ChannelEntry)}
}

// Add stores (or overwrites) an entry under its normalized name.
func (r *ChannelRegistry) Add(e ChannelEntry) {
	e.Name = NormalizeChannel(e.Name)
	r.mu.Lock()
	r.entries[e.Name] = e
	r.mu.Unlock()
}

// Remove deletes the entry. Missing names are a no-op.
func (r *ChannelRegistry) Remove(name string) {
	r.mu.Lock()
	delete(r.entries, NormalizeChannel(name))
	r.mu.Unlock()
}

// Get returns the entry for name.
func (r *ChannelRegistry) Get(name string) (ChannelEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[NormalizeChannel(name)]
	return e, ok
}

// Replace swaps the whole registry content (datastore load).
func (r *ChannelRegistry) Replace(entries []ChannelEntry) {
	next := make(map[string]ChannelEntry, len(entries))
	for _, e := range entries {
		e.Name = NormalizeChannel(e.Name)
		next[e.Name] = e
	}
	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()
}

// Enabled returns the enabled entries sorted by name.
func (r *ChannelRegistry) Enabled() []ChannelEntry {
	r.mu.RLock()
	out := make([]ChannelEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Enabled {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every entry sorted by name.
func (r *ChannelRegistry) All() []ChannelEntry {
	r.mu.RLock()
	out := make([]ChannelEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LiveAnnouncementSettings reports whether live announcements are enabled for
// the channel and which template (if any) it configures. The announcer
// depends on this narrow view.
func (r *ChannelRegistry) LiveAnnouncementSettings(name string) (enabled bool, tmpl string, registered bool) {
	e, ok := r.Get(name)
	if !ok {
		return false, "", false
	}
	return e.Enabled && e.LiveEnabled, e.LiveMessage, true
}
