package notify

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/livegram/telemetry"
)

// StartNotifyJob sweeps all configured channels at a fixed interval until the
// context is cancelled. The first sweep runs immediately so a restart doesn't
// wait out a full interval.
func StartNotifyJob(ctx context.Context, r *Reconciler, interval, budget time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if budget <= 0 {
		budget = 15 * time.Second
	}
	slog.Info("notify job starting",
		slog.Duration("interval", interval),
		slog.Duration("channel_budget", budget),
		slog.Int("channels", len(r.Channels)))
	sweepOnce(ctx, r, budget)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("notify job stopped")
			return
		case <-ticker.C:
			sweepOnce(ctx, r, budget)
		}
	}
}

// sweepOnce reconciles every channel sequentially. Each channel gets a hard
// wall-clock budget and its failures never abort the sweep; the next sweep
// retries at the normal interval.
func sweepOnce(ctx context.Context, r *Reconciler, budget time.Duration) {
	sctx, span := telemetry.StartSpan(ctx, "notify", "notify.sweep",
		attribute.Int("channels", len(r.Channels)))
	defer span.End()

	start := time.Now()
	telemetry.SweepsTotal.Inc()
	live := 0
	for _, login := range slices.Sorted(maps.Keys(r.Channels)) {
		if ctx.Err() != nil {
			return
		}
		cctx, cancel := context.WithTimeout(sctx, budget)
		err := r.ReconcileChannel(cctx, login)
		cancel()
		if err != nil {
			telemetry.ChannelFailures.Inc()
			telemetry.RecordError(span, err)
			slog.Warn("channel reconcile failed",
				slog.String("channel", login),
				slog.Any("err", err),
				slog.String("component", "notify"))
			continue
		}
		if r.Store.IsLive(login) {
			live++
		}
	}
	telemetry.SetLiveChannels(live)
	if err := r.Store.Prune(r.Channels); err != nil {
		slog.Warn("prune state", slog.Any("err", err), slog.String("component", "notify"))
	}
	r.Store.SetLastSweep(time.Now())
	telemetry.SweepDuration.Observe(time.Since(start).Seconds())
}
