package bot

import "errors"

var (
	// ErrConfiguration indicates missing identity or credential at start.
	ErrConfiguration = errors.New("bot configuration invalid")
	// ErrConnectTimeout indicates the transport did not connect within the bound.
	ErrConnectTimeout = errors.New("connect timed out")
	// ErrAuthRejected indicates the transport rejected the credential. Fatal:
	// the bot stops without consuming a reconnect attempt.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrReconnectExhausted indicates the reconnect attempt budget ran out.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrNotConnected is returned by Say when no session is up.
	ErrNotConnected = errors.New("not connected")
)
