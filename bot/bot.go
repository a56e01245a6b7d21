package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/onnwee/chatwarden/command"
	"github.com/onnwee/chatwarden/config"
	"github.com/onnwee/chatwarden/relay"
	"github.com/onnwee/chatwarden/telemetry"
	"github.com/onnwee/chatwarden/twitchapi"
)

// ConnectionState is owned exclusively by the Bot; transitions happen only
// under its mutex.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStopped
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StreamLookup resolves live-stream status (uptime command). The Helix client
// implements it; nil disables the lookup.
type StreamLookup interface {
	GetStream(ctx context.Context, login string) (*twitchapi.Stream, error)
}

type outbound struct {
	channel string
	text    string
}

// Options are the collaborators wired in by main; every field is optional
// except the config passed to New.
type Options struct {
	Store        Store
	Relay        relay.Notifier
	Live         StreamLookup
	NewTransport TransportFactory
}

// Bot is the runtime object owning the single transport session, the channel
// registry, the custom command registry, and the cooldown tracker. All API
// entry points take the Bot explicitly; there is no package-level instance.
type Bot struct {
	mu           sync.Mutex
	cfg          *config.Config
	state        ConnectionState
	transport    Transport
	attempts     int
	connectedAt  time.Time
	startedAt    time.Time
	joined       map[string]bool
	parting      map[string]bool
	lastErr      error
	runCtx       context.Context
	cancel       context.CancelFunc
	loopsStarted bool

	newTransport TransportFactory
	store        Store
	relay        relay.Notifier
	live         StreamLookup

	channels  *ChannelRegistry
	commands  *command.Registry
	cooldowns *command.CooldownTracker
	sendq     chan outbound
}

// New builds a Bot around an immutable config snapshot.
func New(cfg *config.Config, opts Options) *Bot {
	nt := opts.NewTransport
	if nt == nil {
		nt = NewTwitchTransport
	}
	return &Bot{
		cfg:          cfg,
		state:        StateDisconnected,
		joined:       make(map[string]bool),
		parting:      make(map[string]bool),
		newTransport: nt,
		store:        opts.Store,
		relay:        opts.Relay,
		live:         opts.Live,
		channels:     NewChannelRegistry(),
		commands:     command.NewRegistry(),
		cooldowns:    command.NewCooldownTracker(),
		sendq:        make(chan outbound, 64),
	}
}

func (b *Bot) Channels() *ChannelRegistry  { return b.channels }
func (b *Bot) Commands() *command.Registry { return b.commands }

func (b *Bot) config() *config.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// State returns the current connection state.
func (b *Bot) State() ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reconfigure swaps the config snapshot. Only allowed while no session is up.
func (b *Bot) Reconfigure(cfg *config.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateDisconnected, StateStopped:
		b.cfg = cfg
		return nil
	default:
		return fmt.Errorf("cannot reconfigure while %s", b.state)
	}
}

// Start validates credentials, opens the transport session (bounded by
// ConnectTimeout), joins enabled channels, starts the health reconciliation
// loop, and loads custom commands from the datastore. A connect timeout or
// transient failure enters the reconnect flow rather than failing Start; an
// authentication rejection fails Start and stops the bot.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case StateConnecting, StateConnected, StateReconnecting:
		b.mu.Unlock()
		return fmt.Errorf("bot already running (%s)", b.state)
	}
	if b.cfg.BotUsername == "" || b.cfg.OAuthToken == "" {
		b.mu.Unlock()
		return fmt.Errorf("%w: bot username and oauth token are required", ErrConfiguration)
	}
	b.state = StateConnecting
	b.attempts = 0
	b.lastErr = nil
	b.loopsStarted = false
	b.startedAt = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	b.runCtx, b.cancel = runCtx, cancel
	b.mu.Unlock()

	go b.runSender(runCtx)

	if err := b.connect(runCtx); err != nil {
		if errors.Is(err, ErrAuthRejected) {
			b.mu.Lock()
			b.state = StateStopped
			b.lastErr = err
			b.mu.Unlock()
			cancel()
			slog.Error("authentication rejected; bot stopped", slog.Any("err", err))
			return err
		}
		slog.Warn("initial connect failed; entering reconnect flow", slog.Any("err", err))
		b.mu.Lock()
		if b.state != StateStopped {
			b.state = StateReconnecting
			b.scheduleReconnectLocked()
		}
		b.mu.Unlock()
		return nil
	}
	return nil
}

// startServices launches the per-run background loops and the initial custom
// command load. Called from the first successful connect of a run, whether
// that is the initial attempt or a later reconnect; subsequent mid-session
// reconnects are no-ops.
func (b *Bot) startServices(ctx context.Context) {
	b.mu.Lock()
	if b.loopsStarted {
		b.mu.Unlock()
		return
	}
	b.loopsStarted = true
	b.mu.Unlock()

	go b.healthLoop(ctx)
	b.cooldowns.StartJanitor(ctx, 10*time.Minute)
	go func() {
		if err := b.ReloadCommands(ctx); err != nil {
			slog.Warn("loading custom commands failed", slog.Any("err", err))
		}
	}()
}

// Stop sets the state to Stopped before parting and disconnecting so that the
// session-end path does not schedule a reconnect. Idempotent.
func (b *Bot) Stop() {
	b.mu.Lock()
	if b.state == StateStopped || b.state == StateDisconnected {
		b.mu.Unlock()
		return
	}
	b.state = StateStopped
	b.attempts = 0
	t := b.transport
	joined := make([]string, 0, len(b.joined))
	for ch := range b.joined {
		joined = append(joined, ch)
		b.parting[ch] = true
	}
	cancel := b.cancel
	b.mu.Unlock()

	if t != nil {
		for _, ch := range joined {
			if err := t.Part(ch); err != nil {
				slog.Debug("part on stop failed", slog.String("channel", ch), slog.Any("err", err))
			}
		}
		_ = t.Disconnect()
	}
	if cancel != nil {
		cancel()
	}
	telemetry.SetConnected(false)
	telemetry.SetJoinedChannels(0)
	slog.Info("bot stopped")
}

// connect opens one session: create a fresh transport, race its connect
// against the timeout, then kick off joins, the sender hand-off, and the
// session watcher.
func (b *Bot) connect(ctx context.Context) error {
	b.mu.Lock()
	cfg := b.cfg
	t := b.newTransport(cfg)
	b.transport = t
	b.mu.Unlock()

	connected := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- t.Connect(ctx) }()
	go b.consume(ctx, t, connected)

	select {
	case <-connected:
	case err := <-errCh:
		if err == nil {
			err = errors.New("transport closed before connecting")
		}
		return fmt.Errorf("connect: %w", err)
	case <-time.After(cfg.ConnectTimeout):
		_ = t.Disconnect()
		return ErrConnectTimeout
	case <-ctx.Done():
		_ = t.Disconnect()
		return ctx.Err()
	}

	b.mu.Lock()
	if b.state == StateStopped {
		b.mu.Unlock()
		_ = t.Disconnect()
		return errors.New("stopped during connect")
	}
	b.state = StateConnected
	b.attempts = 0
	b.connectedAt = time.Now()
	b.joined = make(map[string]bool)
	b.mu.Unlock()

	telemetry.SetConnected(true)
	slog.Info("chat transport connected", slog.String("identity", cfg.BotUsername))

	go b.waitSession(t, errCh)
	go b.joinAll(ctx, t)
	b.startServices(ctx)
	return nil
}

func (b *Bot) waitSession(t Transport, errCh <-chan error) {
	b.onSessionEnd(t, <-errCh)
}

func (b *Bot) onSessionEnd(t Transport, reason error) {
	b.mu.Lock()
	if b.transport != t {
		// A newer session already replaced this one.
		b.mu.Unlock()
		return
	}
	b.joined = make(map[string]bool)
	telemetry.SetConnected(false)
	telemetry.SetJoinedChannels(0)
	if b.state == StateStopped {
		b.mu.Unlock()
		return
	}
	if errors.Is(reason, ErrAuthRejected) {
		b.state = StateStopped
		b.lastErr = reason
		cancel := b.cancel
		b.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		slog.Error("authentication rejected; bot stopped", slog.Any("err", reason))
		return
	}
	slog.Warn("disconnected unexpectedly", slog.Any("reason", reason))
	b.state = StateReconnecting
	b.scheduleReconnectLocked()
	b.mu.Unlock()
}

// scheduleReconnectLocked consumes one attempt and arms the backoff timer.
// Caller holds b.mu.
func (b *Bot) scheduleReconnectLocked() {
	b.attempts++
	if b.attempts > b.cfg.ReconnectMaxAttempts {
		b.state = StateStopped
		b.lastErr = ErrReconnectExhausted
		if b.cancel != nil {
			b.cancel()
		}
		slog.Error("reconnect attempts exhausted; bot stopped", slog.Int("max_attempts", b.cfg.ReconnectMaxAttempts))
		return
	}
	delay := ReconnectDelay(b.cfg, b.attempts)
	if telemetry.ReconnectAttempts != nil {
		telemetry.ReconnectAttempts.Inc()
	}
	slog.Info("scheduling reconnect", slog.Int("attempt", b.attempts), slog.Duration("delay", delay))
	ctx := b.runCtx
	time.AfterFunc(delay, func() { b.reconnect(ctx) })
}

func (b *Bot) reconnect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	b.mu.Lock()
	if b.state != StateReconnecting {
		// Stop (or a concurrent success) won the race.
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if err := b.connect(ctx); err != nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.state != StateReconnecting {
			return
		}
		if errors.Is(err, ErrAuthRejected) {
			b.state = StateStopped
			b.lastErr = err
			if b.cancel != nil {
				b.cancel()
			}
			slog.Error("authentication rejected during reconnect; bot stopped", slog.Any("err", err))
			return
		}
		slog.Warn("reconnect attempt failed", slog.Int("attempt", b.attempts), slog.Any("err", err))
		b.scheduleReconnectLocked()
	}
}

// ReconnectDelay computes min(base × multiplier^(attempt-1), cap).
func ReconnectDelay(cfg *config.Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(cfg.ReconnectBaseDelay) * math.Pow(cfg.ReconnectMultiplier, float64(attempt-1))
	if d > float64(cfg.ReconnectMaxDelay) {
		return cfg.ReconnectMaxDelay
	}
	return time.Duration(d)
}

// joinAll joins every enabled channel, staggered, with a single retry per
// channel. Later drift is repaired by health reconciliation.
func (b *Bot) joinAll(ctx context.Context, t Transport) {
	cfg := b.config()
	for _, e := range b.channels.Enabled() {
		b.joinWithRetry(ctx, t, e.Name, cfg.JoinRetryDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.JoinStagger):
		}
	}
}

func (b *Bot) joinWithRetry(ctx context.Context, t Transport, channel string, retryDelay time.Duration) {
	err := t.Join(channel)
	if err == nil {
		return
	}
	slog.Warn("channel join failed; retrying once", slog.String("channel", channel), slog.Any("err", err))
	select {
	case <-ctx.Done():
		return
	case <-time.After(retryDelay):
	}
	if err := t.Join(channel); err != nil {
		slog.Warn("channel join retry failed; left to health reconciliation", slog.String("channel", channel), slog.Any("err", err))
	}
}

// healthLoop periodically re-joins configured channels the transport no
// longer reports as joined. It never parts channels; removal is only via
// RemoveChannel.
func (b *Bot) healthLoop(ctx context.Context) {
	interval := b.config().HealthInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.reconcileChannels(ctx)
		}
	}
}

func (b *Bot) reconcileChannels(ctx context.Context) {
	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		return
	}
	t := b.transport
	joined := make(map[string]bool, len(b.joined))
	for ch := range b.joined {
		joined[ch] = true
	}
	stagger := b.cfg.HealthJoinStagger
	b.mu.Unlock()

	for _, e := range b.channels.Enabled() {
		if joined[e.Name] {
			continue
		}
		slog.Info("health reconciliation: rejoining channel", slog.String("channel", e.Name))
		if err := t.Join(e.Name); err != nil {
			slog.Warn("health reconciliation join failed", slog.String("channel", e.Name), slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(stagger):
		}
	}
}

// consume is the single event loop for one session; inbound handling is
// serialized here.
func (b *Bot) consume(ctx context.Context, t Transport, connected chan<- struct{}) {
	for ev := range t.Events() {
		switch ev.Kind {
		case EventConnected:
			select {
			case connected <- struct{}{}:
			default:
			}
		case EventJoined:
			b.mu.Lock()
			if b.transport == t {
				b.joined[ev.Channel] = true
				n := len(b.joined)
				b.mu.Unlock()
				telemetry.SetJoinedChannels(n)
				slog.Info("joined channel", slog.String("channel", ev.Channel))
			} else {
				b.mu.Unlock()
			}
		case EventParted:
			b.handleParted(t, ev.Channel)
		case EventMessage:
			b.handleMessage(ctx, ev)
		case EventError:
			slog.Warn("transport error", slog.String("channel", ev.Channel), slog.Any("err", ev.Err))
		}
	}
}

// handleParted reacts to membership loss. An unsolicited part of a registered
// enabled channel schedules a single quick rejoin, distinct from the slower
// health reconciliation pass.
func (b *Bot) handleParted(t Transport, channel string) {
	b.mu.Lock()
	if b.transport != t {
		b.mu.Unlock()
		return
	}
	delete(b.joined, channel)
	n := len(b.joined)
	expected := b.parting[channel]
	delete(b.parting, channel)
	state := b.state
	delay := b.cfg.RejoinDelay
	b.mu.Unlock()

	telemetry.SetJoinedChannels(n)
	if expected || state != StateConnected {
		return
	}
	entry, ok := b.channels.Get(channel)
	if !ok || !entry.Enabled {
		return
	}
	slog.Info("unsolicited part; scheduling rejoin", slog.String("channel", channel), slog.Duration("delay", delay))
	time.AfterFunc(delay, func() {
		b.mu.Lock()
		live := b.state == StateConnected && b.transport == t
		b.mu.Unlock()
		if !live {
			return
		}
		if _, still := b.channels.Get(channel); !still {
			return
		}
		if err := t.Join(channel); err != nil {
			slog.Warn("rejoin failed", slog.String("channel", channel), slog.Any("err", err))
		}
	})
}

// runSender drains the outbound queue, pacing sends by the configured delay
// so the event loop never blocks on the network.
func (b *Bot) runSender(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.sendq:
			b.mu.Lock()
			t := b.transport
			state := b.state
			delay := b.cfg.SendDelay
			b.mu.Unlock()
			if state != StateConnected || t == nil {
				slog.Debug("dropping queued message; not connected", slog.String("channel", m.channel))
				continue
			}
			t.Say(m.channel, m.text)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
		}
	}
}

// Say enqueues a message for the paced sender.
func (b *Bot) Say(channel, text string) error {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()
	if state != StateConnected {
		return ErrNotConnected
	}
	select {
	case b.sendq <- outbound{channel: NormalizeChannel(channel), text: text}:
		return nil
	default:
		return fmt.Errorf("send queue full, dropping message for %s", channel)
	}
}

// AddChannel registers the channel and joins it immediately when connected.
// A join failure is returned but the registration stands: the next health
// reconciliation pass will retry.
func (b *Bot) AddChannel(entry ChannelEntry) error {
	entry.Name = NormalizeChannel(entry.Name)
	b.channels.Add(entry)
	b.mu.Lock()
	t := b.transport
	state := b.state
	b.mu.Unlock()
	if state != StateConnected || !entry.Enabled || t == nil {
		return nil
	}
	if err := t.Join(entry.Name); err != nil {
		return fmt.Errorf("channel %s registered but join failed (health reconciliation will retry): %w", entry.Name, err)
	}
	return nil
}

// RemoveChannel parts best-effort and always removes the registry entry.
func (b *Bot) RemoveChannel(name string) {
	name = NormalizeChannel(name)
	b.mu.Lock()
	t := b.transport
	state := b.state
	if state == StateConnected {
		b.parting[name] = true
	}
	b.mu.Unlock()
	if state == StateConnected && t != nil {
		if err := t.Part(name); err != nil {
			slog.Debug("part failed on remove", slog.String("channel", name), slog.Any("err", err))
		}
	}
	b.channels.Remove(name)
}

// ReloadCommands replaces the custom command set from the datastore.
func (b *Bot) ReloadCommands(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	cmds, err := b.store.LoadEnabledCustomCommands(ctx)
	if err != nil {
		return fmt.Errorf("load custom commands: %w", err)
	}
	b.commands.Replace(cmds)
	slog.Info("custom commands loaded", slog.Int("count", len(cmds)))
	return nil
}

// LoadChannels replaces the channel registry from the datastore.
func (b *Bot) LoadChannels(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	entries, err := b.store.LoadEnabledChannels(ctx)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}
	b.channels.Replace(entries)
	slog.Info("channels loaded", slog.Int("count", len(entries)))
	return nil
}

// Status is the operator-facing runtime snapshot.
type Status struct {
	State             string    `json:"state"`
	ConnectedAt       time.Time `json:"connected_at,omitempty"`
	UptimeSeconds     int64     `json:"uptime_seconds"`
	JoinedChannels    []string  `json:"joined_channels"`
	ConfiguredCount   int       `json:"configured_channels"`
	CustomCommands    int       `json:"custom_commands"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LastError         string    `json:"last_error,omitempty"`
}

func (b *Bot) Status() Status {
	b.mu.Lock()
	st := Status{
		State:             b.state.String(),
		ReconnectAttempts: b.attempts,
	}
	if b.state == StateConnected {
		st.ConnectedAt = b.connectedAt
		st.UptimeSeconds = int64(time.Since(b.connectedAt).Seconds())
	}
	st.JoinedChannels = make([]string, 0, len(b.joined))
	for ch := range b.joined {
		st.JoinedChannels = append(st.JoinedChannels, ch)
	}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	b.mu.Unlock()

	st.ConfiguredCount = len(b.channels.All())
	st.CustomCommands = b.commands.Len()
	return st
}
