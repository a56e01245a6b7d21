package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chatwarden/command"
	"github.com/onnwee/chatwarden/relay"
)

type fakeNotifier struct {
	mu    sync.Mutex
	notes []relay.Note
	refs  []string
}

func (f *fakeNotifier) PostNote(_ context.Context, channelRef string, note relay.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	f.refs = append(f.refs, channelRef)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes)
}

// newDispatchBot returns a bot forced into the connected state so replies
// reach the send queue without a live session.
func newDispatchBot(opts Options) *Bot {
	b := New(testConfig(), opts)
	b.mu.Lock()
	b.state = StateConnected
	b.mu.Unlock()
	return b
}

func takeReply(t *testing.T, b *Bot) (channel, text string) {
	t.Helper()
	select {
	case m := <-b.sendq:
		return m.channel, m.text
	case <-time.After(time.Second):
		t.Fatal("no reply was queued")
		return "", ""
	}
}

func expectNoReply(t *testing.T, b *Bot) {
	t.Helper()
	select {
	case m := <-b.sendq:
		t.Fatalf("unexpected reply %q in %s", m.text, m.channel)
	case <-time.After(50 * time.Millisecond):
	}
}

func msg(channel, user, text string) Event {
	return Event{
		Kind:    EventMessage,
		Channel: channel,
		User:    User{Name: strings.ToLower(user), DisplayName: user},
		Text:    text,
	}
}

func modMsg(channel, user, text string) Event {
	ev := msg(channel, user, text)
	ev.User.IsModerator = true
	return ev
}

func TestPingBuiltin(t *testing.T) {
	b := newDispatchBot(Options{})
	b.handleMessage(context.Background(), msg("alpha", "Ari", "!ping"))
	ch, text := takeReply(t, b)
	if ch != "alpha" || text != "pong!" {
		t.Fatalf("reply = %q in %s, want pong! in alpha", text, ch)
	}
}

func TestHelpBuiltin(t *testing.T) {
	b := newDispatchBot(Options{})
	b.handleMessage(context.Background(), msg("alpha", "Ari", "!help ping"))
	_, text := takeReply(t, b)
	if !strings.Contains(text, "ping") || !strings.Contains(text, "Usage: !ping") {
		t.Fatalf("help reply = %q, want ping usage", text)
	}
}

func TestUnknownCommandIsSilent(t *testing.T) {
	b := newDispatchBot(Options{})
	b.handleMessage(context.Background(), msg("alpha", "Ari", "!definitelynotacommand"))
	expectNoReply(t, b)
}

func TestNonPrefixedMessageIsNotACommand(t *testing.T) {
	b := newDispatchBot(Options{})
	b.handleMessage(context.Background(), msg("alpha", "Ari", "ping"))
	expectNoReply(t, b)
}

func TestCustomCommandRendersVariables(t *testing.T) {
	b := newDispatchBot(Options{})
	b.Commands().Replace([]command.Custom{{
		Name:     "greet",
		Response: "Hello {{user}}, welcome to {{channel}}! {{sigil}}",
		Variables: map[string]string{
			"sigil": "o7",
		},
	}})
	b.handleMessage(context.Background(), msg("alpha", "Ari", "!greet"))
	_, text := takeReply(t, b)
	if text != "Hello Ari, welcome to alpha! o7" {
		t.Fatalf("rendered = %q", text)
	}
}

func TestCustomCommandUnknownPlaceholderStays(t *testing.T) {
	b := newDispatchBot(Options{})
	b.Commands().Replace([]command.Custom{{
		Name:     "odd",
		Response: "value is {{mystery}}",
	}})
	b.handleMessage(context.Background(), msg("alpha", "Ari", "!odd"))
	_, text := takeReply(t, b)
	if text != "value is {{mystery}}" {
		t.Fatalf("rendered = %q, want literal placeholder", text)
	}
}

func TestBuiltinShadowsCustom(t *testing.T) {
	b := newDispatchBot(Options{})
	b.Commands().Replace([]command.Custom{{
		Name:     "ping",
		Response: "custom ping",
	}})
	b.handleMessage(context.Background(), msg("alpha", "Ari", "!ping"))
	_, text := takeReply(t, b)
	if text != "pong!" {
		t.Fatalf("reply = %q, built-in must shadow the custom command", text)
	}
}

func TestSubscriberOnlyRejection(t *testing.T) {
	b := newDispatchBot(Options{})
	b.Commands().Replace([]command.Custom{{
		Name:           "subs",
		Response:       "secret club",
		SubscriberOnly: true,
		Cooldown:       time.Minute,
	}})

	b.handleMessage(context.Background(), msg("alpha", "Ari", "!subs"))
	_, text := takeReply(t, b)
	if !strings.Contains(text, "only available to subscribers") {
		t.Fatalf("rejection reply = %q", text)
	}
	if cc, _ := b.Commands().Lookup("subs"); cc.Uses != 0 {
		t.Fatalf("rejected invocation incremented uses to %d", cc.Uses)
	}

	// The rejection must not have consumed the cooldown: a subscriber can run
	// it immediately.
	ev := msg("alpha", "Sam", "!subs")
	ev.User.IsSubscriber = true
	b.handleMessage(context.Background(), ev)
	if _, text = takeReply(t, b); text != "secret club" {
		t.Fatalf("subscriber reply = %q, want the response", text)
	}
}

func TestModeratorBypassesTierRestrictions(t *testing.T) {
	b := newDispatchBot(Options{})
	b.Commands().Replace([]command.Custom{{
		Name:          "modthing",
		Response:      "done",
		ModeratorOnly: true,
	}})
	b.handleMessage(context.Background(), modMsg("alpha", "Ari", "!modthing"))
	if _, text := takeReply(t, b); text != "done" {
		t.Fatalf("moderator reply = %q", text)
	}
}

func TestCooldownReply(t *testing.T) {
	b := newDispatchBot(Options{})
	b.Commands().Replace([]command.Custom{{
		Name:     "slow",
		Response: "ok",
		Cooldown: 10 * time.Second,
	}})

	b.handleMessage(context.Background(), msg("alpha", "Ari", "!slow"))
	if _, text := takeReply(t, b); text != "ok" {
		t.Fatalf("first reply = %q", text)
	}

	b.handleMessage(context.Background(), msg("alpha", "Ari", "!slow"))
	_, text := takeReply(t, b)
	if !strings.Contains(text, "on cooldown") {
		t.Fatalf("second reply = %q, want cooldown notice", text)
	}

	// Cooldowns are per user: a different user runs it right away.
	b.handleMessage(context.Background(), msg("alpha", "Sam", "!slow"))
	if _, text := takeReply(t, b); text != "ok" {
		t.Fatalf("other user reply = %q", text)
	}
}

func TestChannelRestrictedCustomCommand(t *testing.T) {
	b := newDispatchBot(Options{})
	b.Commands().Replace([]command.Custom{{
		Name:     "local",
		Response: "home turf",
		Channel:  "beta",
	}})

	b.handleMessage(context.Background(), msg("alpha", "Ari", "!local"))
	expectNoReply(t, b)

	b.handleMessage(context.Background(), msg("beta", "Ari", "!local"))
	if _, text := takeReply(t, b); text != "home turf" {
		t.Fatalf("reply in home channel = %q", text)
	}
}

func TestModCommandsOnlyGate(t *testing.T) {
	b := newDispatchBot(Options{})
	b.mu.Lock()
	b.cfg.ModCommandsOnly = true
	b.mu.Unlock()

	b.handleMessage(context.Background(), msg("alpha", "Ari", "!ping"))
	expectNoReply(t, b)

	b.handleMessage(context.Background(), modMsg("alpha", "Ari", "!ping"))
	if _, text := takeReply(t, b); text != "pong!" {
		t.Fatalf("moderator reply = %q", text)
	}
}

func TestRelayMirrorsPlainChat(t *testing.T) {
	notes := &fakeNotifier{}
	b := newDispatchBot(Options{Relay: notes})
	entry := DefaultChannelEntry("alpha")
	entry.RelaySync = true
	entry.RelayChannelRef = "https://relay.example/hook"
	b.Channels().Add(entry)

	b.handleMessage(context.Background(), msg("alpha", "Ari", "hello chat"))

	waitFor(t, "note mirrored", func() bool { return notes.count() == 1 })
	notes.mu.Lock()
	defer notes.mu.Unlock()
	if notes.notes[0].Body != "hello chat" || notes.notes[0].Author != "Ari" {
		t.Fatalf("note = %+v", notes.notes[0])
	}
	if notes.refs[0] != "https://relay.example/hook" {
		t.Fatalf("channel ref = %q", notes.refs[0])
	}
}

func TestRelayIgnoresChannelsWithoutSync(t *testing.T) {
	notes := &fakeNotifier{}
	b := newDispatchBot(Options{Relay: notes})
	b.Channels().Add(DefaultChannelEntry("alpha"))

	b.handleMessage(context.Background(), msg("alpha", "Ari", "hello chat"))

	time.Sleep(50 * time.Millisecond)
	if notes.count() != 0 {
		t.Fatalf("mirrored %d notes for a non-sync channel", notes.count())
	}
}

func TestRelayMirrorsCustomCommandOutput(t *testing.T) {
	notes := &fakeNotifier{}
	b := newDispatchBot(Options{Relay: notes})
	b.Channels().Add(DefaultChannelEntry("alpha"))
	b.Commands().Replace([]command.Custom{{
		Name:      "echo",
		Response:  "echoed",
		RelaySync: true,
	}})

	b.handleMessage(context.Background(), msg("alpha", "Ari", "!echo"))
	if _, text := takeReply(t, b); text != "echoed" {
		t.Fatalf("reply = %q", text)
	}
	waitFor(t, "command mirrored", func() bool { return notes.count() == 1 })
	notes.mu.Lock()
	defer notes.mu.Unlock()
	if notes.notes[0].Title != "!echo" || notes.notes[0].Body != "echoed" {
		t.Fatalf("note = %+v", notes.notes[0])
	}
}

func TestCustomCommandIncrementsUses(t *testing.T) {
	b := newDispatchBot(Options{})
	b.Commands().Replace([]command.Custom{{Name: "hit", Response: "ok"}})

	b.handleMessage(context.Background(), msg("alpha", "Ari", "!hit"))
	takeReply(t, b)
	b.handleMessage(context.Background(), msg("alpha", "Sam", "!hit"))
	takeReply(t, b)

	cc, ok := b.Commands().Lookup("hit")
	if !ok || cc.Uses != 2 {
		t.Fatalf("uses = %d, want 2", cc.Uses)
	}
}

func TestPanickingHandlerIsContained(t *testing.T) {
	register(Builtin{
		Name:     "boom",
		Cooldown: 0,
		Handler: func(context.Context, *Bot, Event, []string) (string, error) {
			panic("handler bug")
		},
	})
	defer delete(builtins, "boom")

	b := newDispatchBot(Options{})
	b.handleMessage(context.Background(), msg("alpha", "Ari", "!boom"))
	_, text := takeReply(t, b)
	if !strings.Contains(text, "went wrong") {
		t.Fatalf("reply = %q, want generic failure notice", text)
	}
}
