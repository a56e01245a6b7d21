package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"COMMAND_PREFIX", "CONNECT_TIMEOUT", "RECONNECT_MAX_ATTEMPTS",
		"RECONNECT_MULTIPLIER", "ANNOUNCE_ENABLED", "DB_DSN", "HTTP_ADDR",
	} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CommandPrefix != "!" {
		t.Errorf("CommandPrefix = %q, want !", cfg.CommandPrefix)
	}
	if cfg.ConnectTimeout != 15*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if cfg.ReconnectMaxAttempts != 8 {
		t.Errorf("ReconnectMaxAttempts = %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.AnnounceDedupWindow != 30*time.Minute || cfg.AnnounceRetention != 2*time.Hour {
		t.Errorf("announce windows = %v / %v", cfg.AnnounceDedupWindow, cfg.AnnounceRetention)
	}
	if !cfg.AnnounceEnabled {
		t.Errorf("announcements should default to enabled")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COMMAND_PREFIX", "?")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("RECONNECT_BASE_DELAY", "1s")
	t.Setenv("ANNOUNCE_ENABLED", "0")
	t.Setenv("MOD_COMMANDS_ONLY", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CommandPrefix != "?" {
		t.Errorf("CommandPrefix = %q", cfg.CommandPrefix)
	}
	if cfg.ReconnectMaxAttempts != 3 || cfg.ReconnectBaseDelay != time.Second {
		t.Errorf("reconnect knobs = %d / %v", cfg.ReconnectMaxAttempts, cfg.ReconnectBaseDelay)
	}
	if cfg.AnnounceEnabled {
		t.Errorf("ANNOUNCE_ENABLED=0 should disable announcements")
	}
	if !cfg.ModCommandsOnly {
		t.Errorf("MOD_COMMANDS_ONLY=1 should be honored")
	}
}

func TestLoadRejectsBadMultiplier(t *testing.T) {
	t.Setenv("RECONNECT_MULTIPLIER", "0.5")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for multiplier < 1")
	}
}

func TestValidateBotReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateBotReady(); err == nil {
		t.Errorf("expected error with missing creds")
	}
	cfg.BotUsername = "warden"
	cfg.OAuthToken = "oauth:abc"
	if err := cfg.ValidateBotReady(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
