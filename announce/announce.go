// Package announce emits deduplicated "stream went live" messages. A channel
// gets at most one announcement per suppression window; sent records are kept
// for a longer retention window and then reclaimed.
package announce

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/onnwee/chatwarden/expiry"
	"github.com/onnwee/chatwarden/relay"
	"github.com/onnwee/chatwarden/telemetry"
	"github.com/onnwee/chatwarden/template"
)

// StreamInfo is the live-stream context rendered into announcement templates.
type StreamInfo struct {
	Streamer string
	Game     string
	Title    string
	Viewers  int
}

// fallbackPool is used when the datastore pool is empty or unavailable.
var fallbackPool = []string{
	"{{streamer}} just went live playing {{game}}! Come hang out in {{channel}}.",
	"We're live! {{streamer}} is playing {{game}} — {{title}}",
	"{{streamer}} is now streaming {{game}}. Drop by!",
	"Stream's up! {{title}} — come say hi to {{streamer}}.",
	"{{streamer}} went live with {{game}}. See you in chat!",
}

// ChannelSettings is the narrow registry view the announcer needs.
type ChannelSettings interface {
	LiveAnnouncementSettings(channel string) (enabled bool, tmpl string, registered bool)
}

// Sender delivers the rendered message to chat.
type Sender interface {
	Say(channel, text string) error
}

// Store is the persistence collaborator for templates and announcement
// records. Both calls are best-effort from the announcer's point of view.
type Store interface {
	LoadLiveTemplatePool(ctx context.Context) ([]string, error)
	RecordLiveAnnouncement(ctx context.Context, channel, text string, info StreamInfo) error
}

// Announcer suppresses repeat live announcements per channel.
type Announcer struct {
	Enabled     bool
	DedupWindow time.Duration
	Retention   time.Duration

	Channels ChannelSettings
	Sender   Sender
	Store    Store
	Relay    relay.Notifier

	records *expiry.Map

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New builds an announcer with the given windows (30m dedup / 2h retention in
// production; tests shrink them).
func New(enabled bool, dedupWindow, retention time.Duration) *Announcer {
	return &Announcer{
		Enabled:     enabled,
		DedupWindow: dedupWindow,
		Retention:   retention,
		records:     expiry.New(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
}

// StartJanitor reclaims expired records in the background.
func (a *Announcer) StartJanitor(ctx context.Context, interval time.Duration) {
	a.records.StartJanitor(ctx, interval)
}

// TryAnnounce sends a live announcement for channel unless suppressed. The
// returned bool distinguishes "sent" from "suppressed"; errors are only
// returned for the send itself.
func (a *Announcer) TryAnnounce(ctx context.Context, channel string, info StreamInfo) (bool, error) {
	if !a.Enabled {
		a.suppressed(channel, "announcements disabled globally")
		return false, nil
	}
	enabled, customTmpl, registered := a.Channels.LiveAnnouncementSettings(channel)
	if !registered || !enabled {
		a.suppressed(channel, "channel announcements off")
		return false, nil
	}
	now := a.now()
	if last, ok := a.records.Get(channel, now); ok && now.Sub(last) < a.DedupWindow {
		a.suppressed(channel, "within dedup window")
		return false, nil
	}

	tmpl := customTmpl
	if tmpl == "" {
		tmpl = a.pickPoolTemplate(ctx)
	}
	text := template.Render(tmpl, map[string]string{
		"streamer": info.Streamer,
		"channel":  channel,
		"game":     info.Game,
		"title":    info.Title,
		"viewers":  strconv.Itoa(info.Viewers),
	})

	if err := a.Sender.Say(channel, text); err != nil {
		return false, fmt.Errorf("send announcement: %w", err)
	}
	// Record only after a successful send; reclaimed after the retention
	// window, which is longer than the dedup check itself.
	a.records.Set(channel, now, a.Retention)
	if telemetry.AnnouncementsSent != nil {
		telemetry.AnnouncementsSent.Inc()
	}
	slog.Info("live announcement sent", slog.String("channel", channel), slog.String("game", info.Game))

	a.mirror(ctx, channel, text, info)
	return true, nil
}

func (a *Announcer) suppressed(channel, reason string) {
	if telemetry.AnnouncementsSuppressed != nil {
		telemetry.AnnouncementsSuppressed.Inc()
	}
	slog.Debug("live announcement suppressed", slog.String("channel", channel), slog.String("reason", reason))
}

// pickPoolTemplate draws uniformly from the datastore pool, falling back to
// the built-in pool when it is empty or unavailable.
func (a *Announcer) pickPoolTemplate(ctx context.Context) string {
	pool := fallbackPool
	if a.Store != nil {
		if loaded, err := a.Store.LoadLiveTemplatePool(ctx); err != nil {
			slog.Warn("loading template pool failed; using built-in pool", slog.Any("err", err))
		} else if len(loaded) > 0 {
			pool = loaded
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return pool[a.rng.Intn(len(pool))]
}

// mirror posts the announcement summary to the relay and the usage record to
// the datastore. Both best-effort.
func (a *Announcer) mirror(ctx context.Context, channel, text string, info StreamInfo) {
	bg := context.WithoutCancel(ctx)
	if a.Relay != nil {
		go func() {
			c, cancel := context.WithTimeout(bg, 10*time.Second)
			defer cancel()
			if err := a.Relay.PostNote(c, "", relay.Note{
				Title:  fmt.Sprintf("%s is live", info.Streamer),
				Body:   text,
				Footer: channel,
			}); err != nil {
				if telemetry.RelayFailures != nil {
					telemetry.RelayFailures.Inc()
				}
				slog.Debug("relay announcement mirror failed", slog.Any("err", err))
			}
		}()
	}
	if a.Store != nil {
		go func() {
			c, cancel := context.WithTimeout(bg, 5*time.Second)
			defer cancel()
			if err := a.Store.RecordLiveAnnouncement(c, channel, text, info); err != nil {
				slog.Debug("recording announcement failed", slog.Any("err", err))
			}
		}()
	}
}

// SQLStore implements Store over the Postgres schema in db/migrations.
type SQLStore struct {
	DB *sql.DB
}

func (s *SQLStore) LoadLiveTemplatePool(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT template FROM live_templates WHERE enabled = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) RecordLiveAnnouncement(ctx context.Context, channel, text string, info StreamInfo) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO live_announcements (channel, message, game, title, viewers) VALUES ($1,$2,$3,$4,$5)`,
		channel, text, info.Game, info.Title, info.Viewers)
	return err
}
