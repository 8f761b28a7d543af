// Package server exposes the HTTP surface: health, readiness, status, and
// metrics. It injects correlation IDs into request contexts for consistent
// logging.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/livegram/notify"
	"github.com/onnwee/livegram/telemetry"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(store *notify.Store) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// Ready once the state snapshot is loaded and writable; Open verified
		// both at startup, so a live store means ready.
		w.Header().Set("Content-Type", "application/json")
		if store == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_ready"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		channels, lastSweep := store.Status()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"channels":   channels,
			"last_sweep": lastSweep,
		})
	})

	// Correlation ID injector
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)
		telemetry.LoggerWithCorr(ctx).Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		mux.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, store *notify.Store, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(store),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
