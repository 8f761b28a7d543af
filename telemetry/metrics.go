// Package telemetry provides Prometheus metrics, tracing, and correlation-id
// aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SweepsTotal          prometheus.Counter
	ChannelFailures      prometheus.Counter
	MessagesSent         prometheus.Counter
	MessagesEdited       prometheus.Counter
	PinsTotal            prometheus.Counter
	UnpinsTotal          prometheus.Counter
	DuplicatesSuppressed prometheus.Counter

	// Histograms (seconds)
	SweepDuration prometheus.Observer

	// Gauges
	LiveChannelsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "notify_sweeps_total", Help: "Number of reconciliation sweeps started"})
		ChannelFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "notify_channel_failures_total", Help: "Number of per-channel reconciliation failures"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "notify_messages_sent_total", Help: "Number of notification messages sent"})
		MessagesEdited = promauto.NewCounter(prometheus.CounterOpts{Name: "notify_messages_edited_total", Help: "Number of notification messages edited in place"})
		PinsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "notify_pins_total", Help: "Number of group messages pinned"})
		UnpinsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "notify_unpins_total", Help: "Number of group messages unpinned"})
		DuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{Name: "notify_duplicates_suppressed_total", Help: "Number of observations suppressed as duplicate titles"})
		SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "notify_sweep_duration_seconds", Help: "Sweep duration seconds", Buckets: prometheus.DefBuckets})
		LiveChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "notify_live_channels", Help: "Channels currently observed live"})
	})
}

// SetLiveChannels records how many tracked channels are live.
func SetLiveChannels(n int) {
	if LiveChannelsGauge != nil {
		LiveChannelsGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
