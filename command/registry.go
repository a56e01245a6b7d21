// Package command holds the custom command registry and the per-user
// cooldown tracker shared by every command variant.
package command

import (
	"strings"
	"sync"
	"time"
)

// Custom is an operator-defined command whose response is a stored template
// rendered with variable substitution.
type Custom struct {
	Name           string
	Response       string
	Cooldown       time.Duration
	ModeratorOnly  bool
	VIPOnly        bool
	SubscriberOnly bool
	// Channel restricts the command to a single channel when non-empty.
	Channel   string
	RelaySync bool
	Variables map[string]string
	Uses      int64
}

// Registry is the mutable set of custom commands, keyed case-insensitively
// by name. Built-in commands live in the bot package and shadow these.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Custom
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Custom)}
}

// Replace swaps the whole command set. Later duplicates of a name win, which
// matches "last write" semantics of the datastore load order.
func (r *Registry) Replace(cmds []Custom) {
	next := make(map[string]*Custom, len(cmds))
	for i := range cmds {
		c := cmds[i]
		next[strings.ToLower(c.Name)] = &c
	}
	r.mu.Lock()
	r.byName = next
	r.mu.Unlock()
}

// Lookup resolves name case-insensitively and returns a copy so callers
// never hold a pointer into the registry.
func (r *Registry) Lookup(name string) (Custom, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Custom{}, false
	}
	return *c, true
}

// IncrementUses bumps the in-memory usage counter and returns the new value.
// Persisting the counter is the caller's concern.
func (r *Registry) IncrementUses(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return 0
	}
	c.Uses++
	return c.Uses
}

// Names returns the registered command names sorted by map order (callers
// sort if they need stable output).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// Len reports the number of registered custom commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
