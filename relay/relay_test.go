package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostNote(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := &Client{WebhookURL: srv.URL}
	err := c.PostNote(context.Background(), "", Note{
		Title:  "!hug",
		Body:   "ari hugs everyone",
		Author: "ari",
		Footer: "somechannel",
	})
	if err != nil {
		t.Fatalf("PostNote: %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Title != "!hug" || e.Description != "ari hugs everyone" {
		t.Errorf("embed = %+v", e)
	}
	if e.Author == nil || e.Author.Name != "ari" {
		t.Errorf("author = %+v", e.Author)
	}
	if e.Footer == nil || e.Footer.Text != "somechannel" {
		t.Errorf("footer = %+v", e.Footer)
	}
}

func TestPostNoteChannelRefOverridesURL(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := &Client{WebhookURL: "http://127.0.0.1:1/unreachable"}
	if err := c.PostNote(context.Background(), srv.URL, Note{Body: "x"}); err != nil {
		t.Fatalf("PostNote: %v", err)
	}
	if !hit {
		t.Errorf("channelRef webhook was not used")
	}
}

func TestPostNoteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := &Client{WebhookURL: srv.URL}
	if err := c.PostNote(context.Background(), "", Note{Body: "x"}); err == nil {
		t.Errorf("expected error on 4xx response")
	}

	c = &Client{}
	if err := c.PostNote(context.Background(), "", Note{Body: "x"}); err == nil {
		t.Errorf("expected error with no webhook configured")
	}
}
