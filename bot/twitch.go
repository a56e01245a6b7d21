package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chatwarden/config"
)

// twitchTransport adapts gempir/go-twitch-irc to the Transport interface,
// translating its callbacks into the event channel the dispatcher consumes.
type twitchTransport struct {
	client   *twitch.Client
	username string

	mu     sync.Mutex
	closed bool
	events chan Event
}

// NewTwitchTransport builds a transport for one IRC session.
func NewTwitchTransport(cfg *config.Config) Transport {
	c := twitch.NewClient(cfg.BotUsername, cfg.OAuthToken)
	// Membership capability is required to observe our own JOIN/PART.
	c.Capabilities = []string{twitch.TagsCapability, twitch.CommandsCapability, twitch.MembershipCapability}

	t := &twitchTransport{
		client:   c,
		username: strings.ToLower(cfg.BotUsername),
		events:   make(chan Event, 256),
	}
	c.OnConnect(func() {
		t.emit(Event{Kind: EventConnected})
	})
	c.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		t.emit(Event{Kind: EventMessage, Channel: msg.Channel, Text: msg.Message, User: userFromBadges(msg.User)})
	})
	c.OnUserJoinMessage(func(m twitch.UserJoinMessage) {
		if strings.EqualFold(m.User, t.username) {
			t.emit(Event{Kind: EventJoined, Channel: m.Channel})
		}
	})
	c.OnUserPartMessage(func(m twitch.UserPartMessage) {
		if strings.EqualFold(m.User, t.username) {
			t.emit(Event{Kind: EventParted, Channel: m.Channel})
		}
	})
	c.OnNoticeMessage(func(m twitch.NoticeMessage) {
		t.emit(Event{Kind: EventError, Channel: m.Channel, Err: fmt.Errorf("server notice: %s", m.Message)})
	})
	return t
}

func userFromBadges(u twitch.User) User {
	badges := u.Badges
	display := u.DisplayName
	if display == "" {
		display = u.Name
	}
	return User{
		Name:         u.Name,
		DisplayName:  display,
		IsModerator:  badges["moderator"] > 0 || badges["broadcaster"] > 0,
		IsVIP:        badges["vip"] > 0,
		IsSubscriber: badges["subscriber"] > 0 || badges["founder"] > 0,
	}
}

func (t *twitchTransport) Connect(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.client.Disconnect()
		case <-done:
		}
	}()

	err := t.client.Connect()
	t.closeEvents()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, twitch.ErrClientDisconnected):
		// Deliberate Disconnect() is a clean shutdown.
		return nil
	case errors.Is(err, twitch.ErrLoginAuthenticationFailed):
		return fmt.Errorf("%w: %v", ErrAuthRejected, err)
	default:
		return err
	}
}

func (t *twitchTransport) Disconnect() error { return t.client.Disconnect() }

func (t *twitchTransport) Join(channel string) error {
	t.client.Join(channel)
	return nil
}

func (t *twitchTransport) Part(channel string) error {
	t.client.Depart(channel)
	return nil
}

func (t *twitchTransport) Say(channel, text string) { t.client.Say(channel, text) }

func (t *twitchTransport) Events() <-chan Event { return t.events }

func (t *twitchTransport) emit(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
		slog.Warn("transport event buffer full; dropping event", slog.Int("kind", int(ev.Kind)), slog.String("channel", ev.Channel))
	}
}

func (t *twitchTransport) closeEvents() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
}
