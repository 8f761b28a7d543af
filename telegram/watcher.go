package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/onnwee/livegram/config"
	"github.com/onnwee/livegram/notify"
)

// StartWatcher consumes bot updates and records pin-tracking state for group
// messages that are forwards of a known direct-channel notification. This
// recovers messages that reached a group by manual forwarding instead of the
// reconciler's own send path. Best effort; all writes go through the store's
// lock.
func StartWatcher(ctx context.Context, c *Client, store *notify.Store, channels map[string]config.ChannelConfig) {
	// Index: source channel id -> login, and per-login configured group set.
	byChannel := map[int64]string{}
	groupsFor := map[string]map[int64]struct{}{}
	for login, ch := range channels {
		for _, id := range ch.ChannelIDs {
			byChannel[id] = login
		}
		set := make(map[int64]struct{}, len(ch.GroupIDs))
		for _, id := range ch.GroupIDs {
			set[id] = struct{}{}
		}
		groupsFor[login] = set
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := c.api.GetUpdatesChan(u)
	slog.Info("telegram watcher started", slog.Int("channels", len(channels)))
	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			slog.Info("telegram watcher stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			handleUpdate(update, store, byChannel, groupsFor)
		}
	}
}

func handleUpdate(update tgbotapi.Update, store *notify.Store, byChannel map[int64]string, groupsFor map[string]map[int64]struct{}) {
	msg := update.Message
	if msg == nil || msg.ForwardFromChat == nil || msg.Chat == nil {
		return
	}
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return
	}
	login, ok := byChannel[msg.ForwardFromChat.ID]
	if !ok {
		return
	}
	if _, ok := groupsFor[login][msg.Chat.ID]; !ok {
		return
	}
	added, err := store.RecordGroupMessage(login, msg.Chat.ID, msg.MessageID)
	if err != nil {
		slog.Warn("record forwarded notification", slog.String("channel", login), slog.Any("err", err))
		return
	}
	if added {
		slog.Info("recorded forwarded notification",
			slog.String("channel", login),
			slog.Int64("group_id", msg.Chat.ID),
			slog.Int("message_id", msg.MessageID))
	}
}
