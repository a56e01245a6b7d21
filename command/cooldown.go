package command

import (
	"context"
	"strings"
	"time"

	"github.com/onnwee/chatwarden/expiry"
)

// Kind separates cooldown state for built-in and custom commands. Names
// cannot collide across variants today, but the tracker keys on the variant
// anyway so a future collision cannot share state.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindCustom  Kind = "custom"
)

// CooldownTracker records the last successful invocation per
// (variant, command, user). Entries expire once the cooldown has elapsed so
// the map does not grow without bound on long-running deployments.
type CooldownTracker struct {
	last *expiry.Map
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{last: expiry.New()}
}

// CheckAndRecord reports whether the command may run now for this user.
// When allowed, the invocation time is recorded; when denied, remaining is
// the time left on the cooldown and no state changes.
func (t *CooldownTracker) CheckAndRecord(kind Kind, command, user string, cooldown time.Duration, now time.Time) (allowed bool, remaining time.Duration) {
	if cooldown <= 0 {
		return true, 0
	}
	key := cooldownKey(kind, command, user)
	if last, ok := t.last.Get(key, now); ok {
		if elapsed := now.Sub(last); elapsed < cooldown {
			return false, cooldown - elapsed
		}
	}
	t.last.Set(key, now, cooldown)
	return true, 0
}

// StartJanitor evicts stale records in the background until ctx is canceled.
func (t *CooldownTracker) StartJanitor(ctx context.Context, interval time.Duration) {
	t.last.StartJanitor(ctx, interval)
}

func cooldownKey(kind Kind, command, user string) string {
	return string(kind) + ":" + strings.ToLower(command) + ":" + strings.ToLower(user)
}
