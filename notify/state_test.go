package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/onnwee/livegram/config"
)

func TestOpenCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, []string{"foo", "bar"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	status, _ := store.Status()
	if len(status) != 2 {
		t.Fatalf("expected 2 records, got %d", len(status))
	}
	// Open writes the snapshot once to verify the path works.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, []string{"foo"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	title := "Hello"
	if err := store.WithChannel("foo", func(st *ChannelState, persist func() error) error {
		st.LastStreamID = "s1"
		st.LastTitle = &title
		st.ChannelMessages = map[int64]int{100: 7}
		st.GroupMessages = map[int64]int{200: 8}
		return persist()
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	reopened, err := Open(path, []string{"foo"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	var st ChannelState
	_ = reopened.WithChannel("foo", func(s *ChannelState, _ func() error) error {
		st = *s
		return nil
	})
	if st.LastStreamID != "s1" || st.LastTitle == nil || *st.LastTitle != "Hello" {
		t.Errorf("state = %+v", st)
	}
	if st.ChannelMessages[100] != 7 || st.GroupMessages[200] != 8 {
		t.Errorf("message maps = %v %v", st.ChannelMessages, st.GroupMessages)
	}
	if st.Live {
		t.Error("Live must not survive a restart")
	}
}

func TestOpenCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, nil); err == nil {
		t.Fatal("expected error for corrupt snapshot")
	}
}

func TestSaveIsAtomicShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, []string{"foo"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file must not remain after save")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var snapshot map[string]ChannelState
	if err := json.Unmarshal(b, &snapshot); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	if _, ok := snapshot["foo"]; !ok {
		t.Error("snapshot missing foo record")
	}
}

func TestPruneDropsUnconfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := Open(path, []string{"foo", "gone"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	configured := map[string]config.ChannelConfig{"foo": {}}
	if err := store.Prune(configured); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	status, _ := store.Status()
	if _, ok := status["gone"]; ok {
		t.Error("pruned channel still present")
	}
	if _, ok := status["foo"]; !ok {
		t.Error("configured channel was pruned")
	}

	// Pruned result must be persisted.
	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	status, _ = reopened.Status()
	if _, ok := status["gone"]; ok {
		t.Error("pruned channel survived restart")
	}
}

func TestRecordGroupMessage(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state.json"), []string{"foo"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	added, err := store.RecordGroupMessage("foo", 200, 42)
	if err != nil {
		t.Fatalf("RecordGroupMessage() error = %v", err)
	}
	if !added {
		t.Error("expected first record to report added")
	}

	// Same entry again is a no-op.
	added, err = store.RecordGroupMessage("foo", 200, 42)
	if err != nil {
		t.Fatalf("RecordGroupMessage() repeat error = %v", err)
	}
	if added {
		t.Error("duplicate record must not report added")
	}

	if _, err := store.RecordGroupMessage("nobody", 200, 42); err == nil {
		t.Error("expected error for unknown channel")
	}
}
