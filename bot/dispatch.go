package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/onnwee/chatwarden/command"
	"github.com/onnwee/chatwarden/relay"
	"github.com/onnwee/chatwarden/telemetry"
	"github.com/onnwee/chatwarden/template"
)

// handleMessage turns one inbound chat message into at most one command
// execution or one relay-mirroring side effect.
func (b *Bot) handleMessage(ctx context.Context, ev Event) {
	if telemetry.MessagesSeen != nil {
		telemetry.MessagesSeen.Inc()
	}
	cfg := b.config()
	prefix := cfg.CommandPrefix
	if !strings.HasPrefix(ev.Text, prefix) {
		b.mirrorChat(ctx, ev)
		return
	}
	fields := strings.Fields(ev.Text[len(prefix):])
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	ctx, span := telemetry.StartSpan(ctx, "bot", "command "+name,
		telemetry.ChannelAttr(ev.Channel), telemetry.CommandAttr(name))
	defer span.End()

	// Built-ins shadow custom commands sharing a name.
	if bc, ok := lookupBuiltin(name); ok {
		b.runBuiltin(ctx, bc, ev, args)
		return
	}
	if cc, ok := b.commands.Lookup(name); ok {
		b.runCustom(ctx, cc, ev)
	}
}

// mirrorChat forwards plain chatter to the relay for channels with relay sync
// enabled. Fire-and-forget.
func (b *Bot) mirrorChat(ctx context.Context, ev Event) {
	if b.relay == nil {
		return
	}
	entry, ok := b.channels.Get(ev.Channel)
	if !ok || !entry.RelaySync {
		return
	}
	go b.postNote(ctx, entry.RelayChannelRef, relay.Note{
		Body:   ev.Text,
		Author: ev.User.DisplayName,
		Footer: ev.Channel,
	})
}

func (b *Bot) postNote(ctx context.Context, channelRef string, note relay.Note) {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := b.relay.PostNote(c, channelRef, note); err != nil {
		if telemetry.RelayFailures != nil {
			telemetry.RelayFailures.Inc()
		}
		slog.Debug("relay mirror failed", slog.Any("err", err))
	}
}

func (b *Bot) runBuiltin(ctx context.Context, bc Builtin, ev Event, args []string) {
	cfg := b.config()
	// The global moderation gate applies to built-ins only; custom commands
	// carry their own per-command flags.
	if cfg.ModCommandsOnly && !ev.User.IsModerator {
		return
	}
	allowed, remaining := b.cooldowns.CheckAndRecord(command.KindBuiltin, bc.Name, ev.User.Name, bc.Cooldown, time.Now())
	if !allowed {
		b.replyCooldown(ev, cfg.CommandPrefix, bc.Name, remaining)
		return
	}

	start := time.Now()
	out, err := safeInvoke(func() (string, error) { return bc.Handler(ctx, b, ev, args) })
	elapsed := time.Since(start)
	if telemetry.CommandDuration != nil {
		telemetry.CommandDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		if telemetry.CommandErrors != nil {
			telemetry.CommandErrors.Inc()
		}
		slog.Error("builtin command failed", slog.String("command", bc.Name), slog.String("channel", ev.Channel), slog.Any("err", err))
		_ = b.Say(ev.Channel, "Something went wrong running that command.")
		b.logInvocation(ctx, bc.Name, ev, elapsed, false, err)
		return
	}
	if out != "" {
		_ = b.Say(ev.Channel, out)
	}
	if telemetry.CommandsExecuted != nil {
		telemetry.CommandsExecuted.Inc()
	}
	b.logInvocation(ctx, bc.Name, ev, elapsed, true, nil)
}

func (b *Bot) runCustom(ctx context.Context, cc command.Custom, ev Event) {
	if cc.Channel != "" && !strings.EqualFold(cc.Channel, ev.Channel) {
		return
	}
	cfg := b.config()
	u := ev.User
	// Moderators bypass every restriction.
	if !u.IsModerator {
		var tier string
		switch {
		case cc.ModeratorOnly:
			tier = "moderators"
		case cc.VIPOnly && !u.IsVIP:
			tier = "VIPs"
		case cc.SubscriberOnly && !u.IsSubscriber:
			tier = "subscribers"
		}
		if tier != "" {
			if telemetry.CommandsRejected != nil {
				telemetry.CommandsRejected.Inc()
			}
			_ = b.Say(ev.Channel, fmt.Sprintf("@%s, %s%s is only available to %s.", u.DisplayName, cfg.CommandPrefix, cc.Name, tier))
			return
		}
	}

	now := time.Now()
	allowed, remaining := b.cooldowns.CheckAndRecord(command.KindCustom, cc.Name, u.Name, cc.Cooldown, now)
	if !allowed {
		b.replyCooldown(ev, cfg.CommandPrefix, cc.Name, remaining)
		return
	}

	start := time.Now()
	vars := template.Merge(template.MessageVars(u.DisplayName, ev.Channel, now), cc.Variables)
	out := template.Render(cc.Response, vars)
	_ = b.Say(ev.Channel, out)
	elapsed := time.Since(start)

	if telemetry.CommandsExecuted != nil {
		telemetry.CommandsExecuted.Inc()
	}
	if telemetry.CommandDuration != nil {
		telemetry.CommandDuration.Observe(elapsed.Seconds())
	}
	b.commands.IncrementUses(cc.Name)
	if cc.RelaySync && b.relay != nil {
		ref := ""
		if entry, ok := b.channels.Get(ev.Channel); ok {
			ref = entry.RelayChannelRef
		}
		go b.postNote(ctx, ref, relay.Note{
			Title:  cfg.CommandPrefix + cc.Name,
			Body:   out,
			Author: u.DisplayName,
			Footer: ev.Channel,
		})
	}
	b.logInvocation(ctx, cc.Name, ev, elapsed, true, nil)
	if b.store != nil {
		go func() {
			c, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := b.store.IncrementCommandUses(c, cc.Name); err != nil {
				slog.Debug("persisting uses counter failed", slog.String("command", cc.Name), slog.Any("err", err))
			}
		}()
	}
}

func (b *Bot) replyCooldown(ev Event, prefix, name string, remaining time.Duration) {
	if telemetry.CommandsRejected != nil {
		telemetry.CommandsRejected.Inc()
	}
	secs := int(math.Ceil(remaining.Seconds()))
	_ = b.Say(ev.Channel, fmt.Sprintf("@%s, %s%s is on cooldown (%ds left).", ev.User.DisplayName, prefix, name, secs))
}

// logInvocation writes the invocation record asynchronously; a failed write
// never affects the reply already sent.
func (b *Bot) logInvocation(ctx context.Context, name string, ev Event, elapsed time.Duration, success bool, cmdErr error) {
	if b.store == nil {
		return
	}
	inv := Invocation{
		Command:  name,
		Channel:  ev.Channel,
		User:     ev.User.Name,
		Duration: elapsed,
		Success:  success,
	}
	if cmdErr != nil {
		inv.Error = cmdErr.Error()
	}
	go func() {
		c, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := b.store.RecordCommandInvocation(c, inv); err != nil {
			slog.Debug("recording invocation failed", slog.String("command", name), slog.Any("err", err))
		}
	}()
}

// safeInvoke contains handler panics so a bad command cannot take down the
// dispatcher or the connection.
func safeInvoke(fn func() (string, error)) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn()
}
