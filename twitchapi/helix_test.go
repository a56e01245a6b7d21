package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, streams []map[string]any) *HelixClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "app-token",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer app-token" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Client-Id"); got != "cid" {
			t.Errorf("client-id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": streams})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &HelixClient{
		AppTokenSource: &TokenSource{ClientID: "cid", ClientSecret: "secret", TokenURL: srv.URL + "/oauth2/token"},
		ClientID:       "cid",
		BaseURL:        srv.URL + "/helix",
	}
}

func TestGetStreamLive(t *testing.T) {
	hc := newTestClient(t, []map[string]any{{
		"user_login":   "somechannel",
		"user_name":    "SomeChannel",
		"game_name":    "Chess",
		"title":        "ranked grind",
		"viewer_count": 42,
		"started_at":   "2025-06-01T12:00:00Z",
		"type":         "live",
	}})

	s, err := hc.GetStream(context.Background(), "somechannel")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if s == nil {
		t.Fatalf("expected live stream")
	}
	if s.UserName != "SomeChannel" || s.GameName != "Chess" || s.ViewerCount != 42 {
		t.Errorf("stream = %+v", s)
	}
}

func TestGetStreamOffline(t *testing.T) {
	hc := newTestClient(t, nil)
	s, err := hc.GetStream(context.Background(), "somechannel")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil stream for offline channel, got %+v", s)
	}
}

func TestGetStreamEmptyLogin(t *testing.T) {
	hc := newTestClient(t, nil)
	if _, err := hc.GetStream(context.Background(), ""); err == nil {
		t.Errorf("expected error for empty login")
	}
}

func TestTokenSourceMissingCreds(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Errorf("expected error with no client id/secret")
	}
}
