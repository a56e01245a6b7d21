// Package bot contains the chat bot runtime: the connection manager that
// owns the single Twitch IRC session (connect, channel joins, reconnect with
// backoff, periodic channel-health reconciliation), the channel registry, and
// the command dispatcher that turns inbound messages into command executions.
//
// The transport is abstracted behind the Transport interface so tests drive
// the full lifecycle without a network; the production implementation wraps
// gempir/go-twitch-irc. Inbound events are consumed by a single goroutine per
// session, so message handling is serialized against the registries.
//
// Credentials: the IRC client requires a bot username and a user OAuth token
// with chat:read/chat:edit scopes (TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN).
package bot
