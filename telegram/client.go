// Package telegram adapts the Telegram Bot API to the dispatcher interface
// consumed by the notify core, plus an update watcher that recovers pin
// tracking for manually forwarded notifications.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client wraps one bot. It satisfies notify.Dispatcher.
//
// The Bot API library has no context plumbing, so cancellation is honored
// between calls: an expired context fails the next call without issuing it.
type Client struct {
	api *tgbotapi.BotAPI
}

// NewClient builds a client for the given bot token. The constructor calls
// getMe, so a bad token fails here rather than on the first send.
func NewClient(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Client{api: api}, nil
}

// NewClientWithEndpoint points the bot at a non-default API endpoint. Used by
// tests against a mock server; endpoint has the shape of tgbotapi.APIEndpoint.
func NewClientWithEndpoint(token, endpoint string) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Client{api: api}, nil
}

// Send posts an HTML-formatted message and returns its message id.
func (c *Client) Send(ctx context.Context, chatID int64, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// Edit replaces the text of an existing message.
func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := c.api.Send(edit); err != nil {
		return fmt.Errorf("edit %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// Pin pins a message without a notification ping.
func (c *Client) Pin(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pin := tgbotapi.PinChatMessageConfig{
		ChatID:              chatID,
		MessageID:           messageID,
		DisableNotification: true,
	}
	if _, err := c.api.Request(pin); err != nil {
		return fmt.Errorf("pin %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// Unpin unpins a message. A message that is already gone or no longer pinned
// is treated as success so the caller can clear its record.
func (c *Client) Unpin(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unpin := tgbotapi.UnpinChatMessageConfig{
		ChatID:    chatID,
		MessageID: messageID,
	}
	if _, err := c.api.Request(unpin); err != nil {
		if isUnpinTolerable(err) {
			return nil
		}
		return fmt.Errorf("unpin %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func isUnpinTolerable(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not found") ||
		strings.Contains(s, "not pinned") ||
		strings.Contains(s, "can't be unpinned") ||
		strings.Contains(s, "chat_not_modified")
}
