// Package notify implements the live-notification core: the per-channel
// reconciliation state machine, the JSON snapshot store backing it, and the
// polling job that drives both.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/onnwee/livegram/config"
)

// ChannelState is the persisted reconciliation record for one tracked channel.
//
// ChannelMessages/GroupMessages hold the Telegram message id of the current
// live notification per destination chat. An absent destination means nothing
// is there to edit or unpin.
type ChannelState struct {
	LastStreamID string `json:"last_stream_id,omitempty"`
	// LastTitle is the title last notified. nil means no title has been
	// notified in the current session; a present empty string is a real,
	// notified title and must not be confused with nil.
	LastTitle       *string       `json:"last_title,omitempty"`
	ChannelMessages map[int64]int `json:"channel_messages,omitempty"`
	GroupMessages   map[int64]int `json:"group_messages,omitempty"`

	// Live mirrors the most recent observation. Not persisted; restored on the
	// first sweep after a restart.
	Live bool `json:"-"`
}

// Store owns the snapshot file and its in-memory mirror. All mutation happens
// under one mutex so the reconciliation loop and the Telegram update watcher
// never interleave a half-written snapshot.
type Store struct {
	mu        sync.Mutex
	path      string
	channels  map[string]*ChannelState
	lastSweep time.Time
}

// Open loads the snapshot at path (an absent file starts empty), creates
// defaulted records for any configured login not yet present, and writes the
// snapshot back once to verify the path is writable. A load failure here is
// fatal to process startup by contract.
func Open(path string, logins []string) (*Store, error) {
	s := &Store{path: path, channels: map[string]*ChannelState{}}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &s.channels); err != nil {
			return nil, fmt.Errorf("parse state snapshot %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// first run
	default:
		return nil, fmt.Errorf("read state snapshot %s: %w", path, err)
	}
	for _, login := range logins {
		if s.channels[login] == nil {
			s.channels[login] = &ChannelState{}
		}
	}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save persists the whole snapshot.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the snapshot atomically (temp file + rename). Callers hold mu.
func (s *Store) saveLocked() error {
	b, err := json.MarshalIndent(s.channels, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir state dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// WithChannel runs fn with exclusive access to one channel's state. The
// persist callback flushes the whole snapshot; the reconciler calls it after
// each destination-affecting step so a crash loses at most one destination's
// progress. The record is created on first use.
func (s *Store) WithChannel(login string, fn func(st *ChannelState, persist func() error) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.channels[login]
	if st == nil {
		st = &ChannelState{}
		s.channels[login] = st
	}
	return fn(st, s.saveLocked)
}

// RecordGroupMessage retroactively records a group notification message, used
// by the Telegram watcher when it sees a forward of a known channel post. It
// reports whether the entry was new.
func (s *Store) RecordGroupMessage(login string, chatID int64, messageID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.channels[login]
	if st == nil {
		return false, fmt.Errorf("unknown channel %q", login)
	}
	if st.GroupMessages[chatID] == messageID {
		return false, nil
	}
	if st.GroupMessages == nil {
		st.GroupMessages = map[int64]int{}
	}
	st.GroupMessages[chatID] = messageID
	return true, s.saveLocked()
}

// Prune drops state for channels no longer configured. Called at sweep
// boundaries only, never mid-sweep.
func (s *Store) Prune(configured map[string]config.ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	for login := range s.channels {
		if _, ok := configured[login]; !ok {
			delete(s.channels, login)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return s.saveLocked()
}

// IsLive reports the channel's most recently observed liveness.
func (s *Store) IsLive(login string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.channels[login]
	return st != nil && st.Live
}

// SetLastSweep records when the last full sweep finished.
func (s *Store) SetLastSweep(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSweep = t
}

// ChannelStatus is the read-only view served by /status.
type ChannelStatus struct {
	Live            bool   `json:"live"`
	Title           string `json:"title,omitempty"`
	StreamID        string `json:"stream_id,omitempty"`
	ChannelMessages int    `json:"channel_messages"`
	GroupMessages   int    `json:"group_messages"`
}

// Status returns a copy of the per-channel state plus the last sweep time.
func (s *Store) Status() (map[string]ChannelStatus, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ChannelStatus, len(s.channels))
	for login, st := range s.channels {
		title := ""
		if st.LastTitle != nil {
			title = *st.LastTitle
		}
		out[login] = ChannelStatus{
			Live:            st.Live,
			Title:           title,
			StreamID:        st.LastStreamID,
			ChannelMessages: len(st.ChannelMessages),
			GroupMessages:   len(st.GroupMessages),
		}
	}
	return out, s.lastSweep
}
