// Package config loads environment variables plus the notification routing file
// and provides a typed Config used across the service. It applies sensible
// defaults so the binary can run locally with minimal setup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ChannelConfig describes where one tracked Twitch channel is mirrored to.
type ChannelConfig struct {
	// Bot names the Telegram bot that owns this channel's notifications.
	// Empty means the default bot.
	Bot string `json:"bot,omitempty"`
	// ChannelIDs are direct Telegram channels that receive a message per live session.
	ChannelIDs []int64 `json:"channel_ids"`
	// GroupIDs are Telegram groups that receive a message which is then pinned.
	GroupIDs []int64 `json:"group_ids"`
}

type Config struct {
	// Twitch
	TwitchClientID     string
	TwitchClientSecret string

	// Telegram bot tokens keyed by bot name. "default" is filled from
	// TELEGRAM_BOT_TOKEN when not present in the routing file.
	BotTokens map[string]string

	// Channels maps a Twitch login to its Telegram destinations.
	Channels map[string]ChannelConfig

	// State
	StatePath string

	// Polling
	PollInterval   time.Duration
	ChannelTimeout time.Duration
}

// DefaultBot is the bot name used when a channel doesn't name one.
const DefaultBot = "default"

// routingFile is the on-disk shape of NOTIFY_CONFIG.
type routingFile struct {
	Bots     map[string]string        `json:"bots"`
	Channels map[string]ChannelConfig `json:"channels"`
}

// Load reads environment variables and the NOTIFY_CONFIG routing file, applies
// defaults, and validates that every configured channel resolves to a bot
// token. Missing Twitch credentials don't fail Load; use ValidatePollReady
// when you require live-status polling.
func Load() (*Config, error) {
	cfg := &Config{
		BotTokens: map[string]string{},
		Channels:  map[string]ChannelConfig{},
	}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	if tok := os.Getenv("TELEGRAM_BOT_TOKEN"); tok != "" {
		cfg.BotTokens[DefaultBot] = tok
	}

	path := os.Getenv("NOTIFY_CONFIG")
	if path == "" {
		path = "notify.json"
	}
	if b, err := os.ReadFile(path); err == nil {
		var rf routingFile
		if err := json.Unmarshal(b, &rf); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for name, tok := range rf.Bots {
			cfg.BotTokens[name] = tok
		}
		if rf.Channels != nil {
			cfg.Channels = rf.Channels
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// A channel routed to an unknown bot is a configuration error, not a
	// runtime condition to retry around.
	for login, ch := range cfg.Channels {
		if cfg.BotTokens[ch.BotName()] == "" {
			return nil, fmt.Errorf("channel %q routed to bot %q with no token configured", login, ch.BotName())
		}
	}

	cfg.StatePath = os.Getenv("STATE_PATH")
	if cfg.StatePath == "" {
		cfg.StatePath = "data/state.json"
	}

	cfg.PollInterval = 30 * time.Second
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q", v)
		}
		cfg.PollInterval = d
	}

	cfg.ChannelTimeout = 15 * time.Second
	if v := os.Getenv("CHANNEL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CHANNEL_TIMEOUT %q", v)
		}
		cfg.ChannelTimeout = d
	}

	return cfg, nil
}

// BotName returns the bot serving this channel, falling back to the default bot.
func (c ChannelConfig) BotName() string {
	if c.Bot == "" {
		return DefaultBot
	}
	return c.Bot
}

// ValidatePollReady checks required fields for live-status polling.
func (c *Config) ValidatePollReady() error {
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("no channels configured in NOTIFY_CONFIG")
	}
	return nil
}
