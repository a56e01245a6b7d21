package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Builtin is a compiled-in command with a fixed cooldown.
type Builtin struct {
	Name        string
	Usage       string
	Description string
	Cooldown    time.Duration
	Handler     func(ctx context.Context, b *Bot, ev Event, args []string) (string, error)
}

var builtins = map[string]Builtin{}

func register(bc Builtin) {
	builtins[strings.ToLower(bc.Name)] = bc
}

func lookupBuiltin(name string) (Builtin, bool) {
	bc, ok := builtins[strings.ToLower(name)]
	return bc, ok
}

// Builtins returns the built-in set sorted by name.
func Builtins() []Builtin {
	out := make([]Builtin, 0, len(builtins))
	for _, bc := range builtins {
		out = append(out, bc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func init() {
	register(Builtin{
		Name:        "ping",
		Usage:       "!ping",
		Description: "Checks that the bot is alive.",
		Cooldown:    5 * time.Second,
		Handler: func(ctx context.Context, b *Bot, ev Event, args []string) (string, error) {
			return "pong!", nil
		},
	})
	register(Builtin{
		Name:        "help",
		Usage:       "!help <command>",
		Description: "Shows usage for a command.",
		Cooldown:    5 * time.Second,
		Handler:     handleHelp,
	})
	register(Builtin{
		Name:        "commands",
		Usage:       "!commands",
		Description: "Lists available commands.",
		Cooldown:    15 * time.Second,
		Handler:     handleCommands,
	})
	register(Builtin{
		Name:        "uptime",
		Usage:       "!uptime",
		Description: "Shows how long the stream has been live.",
		Cooldown:    15 * time.Second,
		Handler:     handleUptime,
	})
	register(Builtin{
		Name:        "botinfo",
		Usage:       "!botinfo",
		Description: "Shows bot connection status.",
		Cooldown:    30 * time.Second,
		Handler:     handleBotinfo,
	})
}

func handleHelp(ctx context.Context, b *Bot, ev Event, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: !help <command> — try !commands for the list.", nil
	}
	name := strings.ToLower(strings.TrimPrefix(args[0], b.config().CommandPrefix))
	if bc, ok := lookupBuiltin(name); ok {
		return fmt.Sprintf("%s — %s Usage: %s", bc.Name, bc.Description, bc.Usage), nil
	}
	if cc, ok := b.commands.Lookup(name); ok {
		return fmt.Sprintf("%s — custom command (cooldown %ds).", cc.Name, int(cc.Cooldown.Seconds())), nil
	}
	return fmt.Sprintf("Unknown command %q.", name), nil
}

func handleCommands(ctx context.Context, b *Bot, ev Event, args []string) (string, error) {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	for _, name := range b.commands.Names() {
		if cc, ok := b.commands.Lookup(name); ok {
			// Channel-restricted commands only show up where they work.
			if cc.Channel != "" && !strings.EqualFold(cc.Channel, ev.Channel) {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	prefix := b.config().CommandPrefix
	for i, n := range names {
		names[i] = prefix + n
	}
	return "Available commands: " + strings.Join(names, ", "), nil
}

func handleUptime(ctx context.Context, b *Bot, ev Event, args []string) (string, error) {
	if b.live == nil {
		return "Stream status is not available.", nil
	}
	s, err := b.live.GetStream(ctx, ev.Channel)
	if err != nil {
		return "", fmt.Errorf("stream lookup: %w", err)
	}
	if s == nil {
		return fmt.Sprintf("%s is offline.", ev.Channel), nil
	}
	return fmt.Sprintf("%s has been live for %s.", s.UserName, humanDuration(time.Since(s.StartedAt))), nil
}

func handleBotinfo(ctx context.Context, b *Bot, ev Event, args []string) (string, error) {
	st := b.Status()
	return fmt.Sprintf("State: %s, joined channels: %d, custom commands: %d.",
		st.State, len(st.JoinedChannels), st.CustomCommands), nil
}

func humanDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
