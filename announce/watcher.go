package announce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chatwarden/twitchapi"
)

// StreamLookup resolves the current stream for a login, nil when offline.
type StreamLookup interface {
	GetStream(ctx context.Context, login string) (*twitchapi.Stream, error)
}

// ChannelLister names the channels the watcher should poll.
type ChannelLister interface {
	Enabled() []string
}

// Watcher polls the Helix API and fires announcements on the offline-to-live
// edge. A channel already live on its first successful lookup is treated as
// seen, so restarts do not re-announce ongoing streams.
type Watcher struct {
	Announcer *Announcer
	Streams   StreamLookup
	Channels  ChannelLister
	Interval  time.Duration

	mu   sync.Mutex
	live map[string]bool
	seen map[string]bool
}

// Run blocks until ctx is done, polling every Interval.
func (w *Watcher) Run(ctx context.Context) {
	if w.Interval <= 0 {
		w.Interval = 30 * time.Second
	}
	w.poll(ctx)
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	w.mu.Lock()
	if w.live == nil {
		w.live = make(map[string]bool)
		w.seen = make(map[string]bool)
	}
	w.mu.Unlock()

	for _, channel := range w.Channels.Enabled() {
		if ctx.Err() != nil {
			return
		}
		stream, err := w.Streams.GetStream(ctx, channel)
		if err != nil {
			slog.Warn("stream lookup failed", slog.String("channel", channel), slog.Any("err", err))
			continue
		}
		nowLive := stream != nil
		w.mu.Lock()
		first := !w.seen[channel]
		w.seen[channel] = true
		wasLive := w.live[channel]
		w.live[channel] = nowLive
		w.mu.Unlock()

		if !nowLive || wasLive {
			continue
		}
		if first {
			// Prime only; ongoing streams were announced before a restart
			// or predate the bot entirely.
			continue
		}
		info := StreamInfo{
			Streamer: stream.UserName,
			Game:     stream.GameName,
			Title:    stream.Title,
			Viewers:  stream.ViewerCount,
		}
		if info.Streamer == "" {
			info.Streamer = stream.UserLogin
		}
		if _, err := w.Announcer.TryAnnounce(ctx, channel, info); err != nil {
			slog.Warn("announcing live stream failed", slog.String("channel", channel), slog.Any("err", err))
		}
	}
}
