// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesSeen            prometheus.Counter
	CommandsExecuted        prometheus.Counter
	CommandsRejected        prometheus.Counter
	CommandErrors           prometheus.Counter
	ReconnectAttempts       prometheus.Counter
	AnnouncementsSent       prometheus.Counter
	AnnouncementsSuppressed prometheus.Counter
	RelayFailures           prometheus.Counter

	// Histograms (seconds)
	CommandDuration prometheus.Observer

	// Gauges
	ConnectedGauge      prometheus.Gauge // 1=connected,0=not
	JoinedChannelsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesSeen = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_messages_seen_total", Help: "Inbound chat messages observed"})
		CommandsExecuted = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_commands_executed_total", Help: "Commands executed successfully"})
		CommandsRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_commands_rejected_total", Help: "Commands rejected by permission or cooldown checks"})
		CommandErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_command_errors_total", Help: "Command handler failures"})
		ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reconnect_attempts_total", Help: "Reconnect attempts scheduled"})
		AnnouncementsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_live_announcements_sent_total", Help: "Live announcements sent"})
		AnnouncementsSuppressed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_live_announcements_suppressed_total", Help: "Live announcements suppressed by the dedup window or flags"})
		RelayFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_relay_failures_total", Help: "Relay mirror failures (logged only)"})
		CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_command_duration_seconds", Help: "Command handler duration seconds", Buckets: prometheus.DefBuckets})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_connected", Help: "Chat transport connected=1 disconnected=0"})
		JoinedChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_joined_channels", Help: "Channels the transport currently reports as joined"})
	})
}

// SetConnected flips the connection gauge.
func SetConnected(connected bool) {
	if ConnectedGauge == nil {
		return
	}
	if connected {
		ConnectedGauge.Set(1)
	} else {
		ConnectedGauge.Set(0)
	}
}

// SetJoinedChannels records current joined-channel count.
func SetJoinedChannels(n int) {
	if JoinedChannelsGauge != nil {
		JoinedChannelsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
