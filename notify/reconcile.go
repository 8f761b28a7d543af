package notify

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/onnwee/livegram/config"
	"github.com/onnwee/livegram/telemetry"
)

// Status is one live-status observation for a tracked channel.
type Status struct {
	Live     bool
	StreamID string
	Title    string
}

// StatusSource answers whether a channel is currently live.
type StatusSource interface {
	ResolveUserID(ctx context.Context, login string) (string, error)
	GetLiveStatus(ctx context.Context, userID string) (Status, error)
}

// Dispatcher delivers notification messages to one Telegram bot's chats.
// Unpin must tolerate already-unpinned/not-found and return nil for those.
type Dispatcher interface {
	Send(ctx context.Context, chatID int64, text string) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	Pin(ctx context.Context, chatID int64, messageID int) error
	Unpin(ctx context.Context, chatID int64, messageID int) error
}

// Reconciler maps a fresh observation plus the persisted state of a channel to
// the minimal set of dispatcher actions, recording progress incrementally so a
// crash mid-fan-out is recovered by the next sweep.
type Reconciler struct {
	Store    *Store
	Source   StatusSource
	Bots     map[string]Dispatcher
	Channels map[string]config.ChannelConfig
}

// ReconcileChannel runs one reconciliation cycle for a single channel. A
// status resolution failure aborts the cycle with no state mutation and no
// destination action.
func (r *Reconciler) ReconcileChannel(ctx context.Context, login string) error {
	ch, ok := r.Channels[login]
	if !ok {
		return fmt.Errorf("channel %q not configured", login)
	}
	disp, ok := r.Bots[ch.BotName()]
	if !ok {
		return fmt.Errorf("no dispatcher for bot %q", ch.BotName())
	}
	userID, err := r.Source.ResolveUserID(ctx, login)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", login, err)
	}
	status, err := r.Source.GetLiveStatus(ctx, userID)
	if err != nil {
		return fmt.Errorf("live status %s: %w", login, err)
	}
	return r.Store.WithChannel(login, func(st *ChannelState, persist func() error) error {
		if status.Live {
			return r.applyLive(ctx, disp, login, ch, status, st, persist)
		}
		return r.applyOffline(ctx, disp, login, st, persist)
	})
}

// applyOffline unwinds group pins. Direct-channel messages stay up as
// historical records, and LastStreamID is kept so the session comparison on
// the next live observation still works. LastTitle is cleared so an identical
// title in a later session is not suppressed as a duplicate.
func (r *Reconciler) applyOffline(ctx context.Context, disp Dispatcher, login string, st *ChannelState, persist func() error) error {
	logger := slog.Default().With(slog.String("channel", login), slog.String("component", "notify"))
	wasLive := st.Live
	st.Live = false
	dirty := st.LastTitle != nil
	st.LastTitle = nil
	for _, chatID := range slices.Sorted(maps.Keys(st.GroupMessages)) {
		msgID := st.GroupMessages[chatID]
		if msgID != 0 {
			if err := disp.Unpin(ctx, chatID, msgID); err != nil {
				// Entry stays recorded; the next sweep retries the unpin.
				logger.Warn("unpin failed", slog.Int64("chat_id", chatID), slog.Int("message_id", msgID), slog.Any("err", err))
				continue
			}
			telemetry.UnpinsTotal.Inc()
		}
		delete(st.GroupMessages, chatID)
		dirty = false
		if err := persist(); err != nil {
			return fmt.Errorf("persist after unpin %d: %w", chatID, err)
		}
	}
	if dirty {
		if err := persist(); err != nil {
			return fmt.Errorf("persist offline state: %w", err)
		}
	}
	if wasLive {
		logger.Info("stream offline; group pins unwound", slog.Int("pending", len(st.GroupMessages)))
	}
	return nil
}

func (r *Reconciler) applyLive(ctx context.Context, disp Dispatcher, login string, ch config.ChannelConfig, status Status, st *ChannelState, persist func() error) error {
	logger := slog.Default().With(slog.String("channel", login), slog.String("component", "notify"))
	st.Live = true

	// Unchanged title: nothing to notify, regardless of stream id. A record
	// with no notified title never matches, so a first observation with an
	// empty title still fans out.
	if st.LastTitle != nil && *st.LastTitle == status.Title {
		telemetry.DuplicatesSuppressed.Inc()
		logger.Debug("duplicate title; suppressed", slog.String("title", status.Title))
		return nil
	}

	text := LiveMessage(login, status.Title)

	// Same ongoing session with a new title: edit known messages in place,
	// never fan out new sends or pins.
	if st.LastStreamID != "" && st.LastStreamID == status.StreamID {
		r.editAll(ctx, disp, logger, st.ChannelMessages, text)
		r.editAll(ctx, disp, logger, st.GroupMessages, text)
		st.LastTitle = &status.Title
		if err := persist(); err != nil {
			return fmt.Errorf("persist edited title: %w", err)
		}
		logger.Info("title updated in place", slog.String("title", status.Title))
		return nil
	}

	// New session: prune destinations dropped from configuration, then fan out.
	pruneStale(logger, "channel", st.ChannelMessages, ch.ChannelIDs)
	pruneStale(logger, "group", st.GroupMessages, ch.GroupIDs)

	for _, chatID := range sortedIDs(ch.ChannelIDs) {
		msgID, err := disp.Send(ctx, chatID, text)
		if err != nil {
			logger.Warn("send failed", slog.Int64("chat_id", chatID), slog.Any("err", err))
			continue
		}
		telemetry.MessagesSent.Inc()
		if st.ChannelMessages == nil {
			st.ChannelMessages = map[int64]int{}
		}
		st.ChannelMessages[chatID] = msgID
		if err := persist(); err != nil {
			return fmt.Errorf("persist after send %d: %w", chatID, err)
		}
	}
	for _, chatID := range sortedIDs(ch.GroupIDs) {
		msgID, err := disp.Send(ctx, chatID, text)
		if err != nil {
			logger.Warn("send failed", slog.Int64("chat_id", chatID), slog.Any("err", err))
			continue
		}
		telemetry.MessagesSent.Inc()
		if st.GroupMessages == nil {
			st.GroupMessages = map[int64]int{}
		}
		st.GroupMessages[chatID] = msgID
		if err := persist(); err != nil {
			return fmt.Errorf("persist after send %d: %w", chatID, err)
		}
		if err := disp.Pin(ctx, chatID, msgID); err != nil {
			logger.Warn("pin failed", slog.Int64("chat_id", chatID), slog.Int("message_id", msgID), slog.Any("err", err))
			continue
		}
		telemetry.PinsTotal.Inc()
	}

	st.LastStreamID = status.StreamID
	st.LastTitle = &status.Title
	if err := persist(); err != nil {
		return fmt.Errorf("persist new session: %w", err)
	}
	logger.Info("live notification fanned out",
		slog.String("stream_id", status.StreamID),
		slog.String("title", status.Title),
		slog.Int("channels", len(st.ChannelMessages)),
		slog.Int("groups", len(st.GroupMessages)))
	return nil
}

// editAll edits every recorded message with the new text. A zero message id
// signals a state/dispatcher disagreement and is reported, not acted on.
func (r *Reconciler) editAll(ctx context.Context, disp Dispatcher, logger *slog.Logger, msgs map[int64]int, text string) {
	for _, chatID := range slices.Sorted(maps.Keys(msgs)) {
		msgID := msgs[chatID]
		if msgID == 0 {
			logger.Warn("recorded destination has no message id; skipping edit", slog.Int64("chat_id", chatID))
			continue
		}
		if err := disp.Edit(ctx, chatID, msgID, text); err != nil {
			logger.Warn("edit failed", slog.Int64("chat_id", chatID), slog.Int("message_id", msgID), slog.Any("err", err))
			continue
		}
		telemetry.MessagesEdited.Inc()
	}
}

// pruneStale drops recorded entries whose destination left the configuration.
func pruneStale(logger *slog.Logger, kind string, msgs map[int64]int, configured []int64) {
	if len(msgs) == 0 {
		return
	}
	keep := make(map[int64]struct{}, len(configured))
	for _, id := range configured {
		keep[id] = struct{}{}
	}
	for chatID := range msgs {
		if _, ok := keep[chatID]; !ok {
			logger.Info("pruning stale destination", slog.String("kind", kind), slog.Int64("chat_id", chatID))
			delete(msgs, chatID)
		}
	}
}

func sortedIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
