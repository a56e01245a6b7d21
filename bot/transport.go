package bot

import (
	"context"

	"github.com/onnwee/chatwarden/config"
)

// User carries the sender identity and badge-derived standing for one
// message. Badges are taken as authoritative per-message.
type User struct {
	Name        string
	DisplayName string
	// IsModerator includes the broadcaster.
	IsModerator bool
	IsVIP       bool
	// IsSubscriber includes the founder badge.
	IsSubscriber bool
}

// EventKind discriminates transport events.
type EventKind int

const (
	EventConnected EventKind = iota
	EventMessage
	EventJoined
	EventParted
	EventError
)

// Event is one inbound transport occurrence. Disconnection is not an event:
// it is conveyed by Connect returning.
type Event struct {
	Kind    EventKind
	Channel string
	User    User
	Text    string
	Err     error
}

// Transport is the messaging-network boundary. One Transport value represents
// one session; reconnects create a fresh Transport.
type Transport interface {
	// Connect opens the session and blocks until it ends. The returned error
	// is the disconnect reason; nil means a clean Disconnect. The events
	// channel is closed once Connect returns.
	Connect(ctx context.Context) error
	Disconnect() error
	Join(channel string) error
	Part(channel string) error
	Say(channel, text string)
	Events() <-chan Event
}

// TransportFactory builds a fresh session. Reconnection tears down the old
// transport and calls the factory again rather than resuming.
type TransportFactory func(cfg *config.Config) Transport
