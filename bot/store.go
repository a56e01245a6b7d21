package bot

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/chatwarden/command"
)

// Invocation is one command execution log entry.
type Invocation struct {
	Command  string
	Channel  string
	User     string
	Duration time.Duration
	Success  bool
	Error    string
}

// Store is the persistence collaborator boundary. All methods are best-effort
// from the dispatcher's point of view: a failed write never affects a reply
// already sent.
type Store interface {
	LoadEnabledChannels(ctx context.Context) ([]ChannelEntry, error)
	LoadEnabledCustomCommands(ctx context.Context) ([]command.Custom, error)
	RecordCommandInvocation(ctx context.Context, inv Invocation) error
	IncrementCommandUses(ctx context.Context, name string) error
}

// SQLStore implements Store over the Postgres schema in db/migrations.
type SQLStore struct {
	DB *sql.DB
}

func (s *SQLStore) LoadEnabledChannels(ctx context.Context) ([]ChannelEntry, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT name, enabled, relay_sync, relay_channel_ref, live_enabled, live_message
		 FROM channels WHERE enabled = TRUE ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []ChannelEntry
	for rows.Next() {
		var e ChannelEntry
		if err := rows.Scan(&e.Name, &e.Enabled, &e.RelaySync, &e.RelayChannelRef, &e.LiveEnabled, &e.LiveMessage); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) LoadEnabledCustomCommands(ctx context.Context) ([]command.Custom, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT name, response, cooldown_seconds, moderator_only, vip_only, subscriber_only, channel, relay_sync, variables, uses_count
		 FROM custom_commands WHERE enabled = TRUE ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []command.Custom
	for rows.Next() {
		var c command.Custom
		var cooldownSecs int
		var varsJSON string
		if err := rows.Scan(&c.Name, &c.Response, &cooldownSecs, &c.ModeratorOnly, &c.VIPOnly, &c.SubscriberOnly, &c.Channel, &c.RelaySync, &varsJSON, &c.Uses); err != nil {
			return nil, err
		}
		c.Cooldown = time.Duration(cooldownSecs) * time.Second
		if varsJSON != "" && varsJSON != "{}" {
			if err := json.Unmarshal([]byte(varsJSON), &c.Variables); err != nil {
				slog.Warn("invalid variables json for custom command", slog.String("command", c.Name), slog.Any("err", err))
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) RecordCommandInvocation(ctx context.Context, inv Invocation) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO command_invocations (command, channel, username, duration_ms, success, error)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		inv.Command, inv.Channel, inv.User, inv.Duration.Milliseconds(), inv.Success, inv.Error)
	return err
}

func (s *SQLStore) IncrementCommandUses(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE custom_commands SET uses_count = uses_count + 1, updated_at = NOW() WHERE name = $1`,
		strings.ToLower(name))
	return err
}
