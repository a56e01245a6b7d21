package bot_test

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/chatwarden/bot"
	"github.com/onnwee/chatwarden/testutil"
)

func TestSQLStoreChannels(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.CleanTables(t, database, "channels")
	ctx := context.Background()

	_, err := database.Exec(`INSERT INTO channels (name, enabled, relay_sync, relay_channel_ref, live_enabled, live_message)
		VALUES ('alpha', TRUE, TRUE, 'https://relay.example/hook', TRUE, 'we live'),
		       ('beta', FALSE, FALSE, '', TRUE, '')`)
	if err != nil {
		t.Fatalf("seed channels: %v", err)
	}

	store := &bot.SQLStore{DB: database}
	entries, err := store.LoadEnabledChannels(ctx)
	if err != nil {
		t.Fatalf("LoadEnabledChannels: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "alpha" {
		t.Fatalf("entries = %+v, want only alpha", entries)
	}
	e := entries[0]
	if !e.RelaySync || e.RelayChannelRef != "https://relay.example/hook" || e.LiveMessage != "we live" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestSQLStoreCustomCommands(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.CleanTables(t, database, "custom_commands")
	ctx := context.Background()

	_, err := database.Exec(`INSERT INTO custom_commands (name, response, cooldown_seconds, subscriber_only, variables, enabled)
		VALUES ('greet', 'Hello {{user}}', 7, TRUE, '{"sigil":"o7"}', TRUE),
		       ('hidden', 'nope', 0, FALSE, '{}', FALSE)`)
	if err != nil {
		t.Fatalf("seed commands: %v", err)
	}

	store := &bot.SQLStore{DB: database}
	cmds, err := store.LoadEnabledCustomCommands(ctx)
	if err != nil {
		t.Fatalf("LoadEnabledCustomCommands: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("cmds = %+v, want only greet", cmds)
	}
	c := cmds[0]
	if c.Name != "greet" || c.Cooldown != 7*time.Second || !c.SubscriberOnly {
		t.Fatalf("command = %+v", c)
	}
	if c.Variables["sigil"] != "o7" {
		t.Fatalf("variables = %+v", c.Variables)
	}

	if err := store.IncrementCommandUses(ctx, "GREET"); err != nil {
		t.Fatalf("IncrementCommandUses: %v", err)
	}
	var uses int64
	if err := database.QueryRow(`SELECT uses_count FROM custom_commands WHERE name='greet'`).Scan(&uses); err != nil {
		t.Fatalf("read uses: %v", err)
	}
	if uses != 1 {
		t.Fatalf("uses = %d, want 1", uses)
	}
}

func TestSQLStoreRecordInvocation(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.CleanTables(t, database, "command_invocations")
	ctx := context.Background()

	store := &bot.SQLStore{DB: database}
	err := store.RecordCommandInvocation(ctx, bot.Invocation{
		Command:  "ping",
		Channel:  "alpha",
		User:     "ari",
		Duration: 42 * time.Millisecond,
		Success:  true,
	})
	if err != nil {
		t.Fatalf("RecordCommandInvocation: %v", err)
	}

	var (
		command  string
		duration int64
		success  bool
	)
	err = database.QueryRow(`SELECT command, duration_ms, success FROM command_invocations LIMIT 1`).
		Scan(&command, &duration, &success)
	if err != nil {
		t.Fatalf("read invocation: %v", err)
	}
	if command != "ping" || duration != 42 || !success {
		t.Fatalf("row = %s %d %v", command, duration, success)
	}
}
