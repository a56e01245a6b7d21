// Package relay mirrors selected bot activity to a secondary chat platform
// via an incoming webhook. All calls are best-effort: failures are logged and
// counted, never propagated into the chat reply path.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Note is one structured mirror entry.
type Note struct {
	Title  string
	Body   string
	Author string
	Footer string
}

// Notifier is the collaborator boundary the bot and announcer depend on.
type Notifier interface {
	// PostNote mirrors a note. channelRef selects a per-channel webhook when
	// non-empty; otherwise the client's default webhook is used.
	PostNote(ctx context.Context, channelRef string, note Note) error
}

// Client posts notes to a Discord-compatible webhook endpoint.
type Client struct {
	WebhookURL string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// webhook embed wire format (the subset we emit).
type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Author      *embedField  `json:"author,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedField struct {
	Name string `json:"name"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// PostNote posts one note as a single-embed webhook payload.
func (c *Client) PostNote(ctx context.Context, channelRef string, note Note) error {
	url := c.WebhookURL
	if channelRef != "" {
		url = channelRef
	}
	if url == "" {
		return fmt.Errorf("relay webhook url not configured")
	}
	e := embed{Title: note.Title, Description: note.Body}
	if note.Author != "" {
		e.Author = &embedField{Name: note.Author}
	}
	if note.Footer != "" {
		e.Footer = &embedFooter{Text: note.Footer}
	}
	body, err := json.Marshal(payload{Embeds: []embed{e}})
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay post failed: %s: %s", resp.Status, string(b))
	}
	return nil
}
