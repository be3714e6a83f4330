package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dayline/internal/model"
)

func TestWatcherSignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	if err := os.WriteFile(path, []byte("events: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-w.Events():
		t.Fatalf("unexpected signal for unrelated file: %+v", c)
	case <-time.After(300 * time.Millisecond):
	}

	// Several quick writes collapse into one signal.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("events: []\nentries: []\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case c := <-w.Events():
		if c.Op != model.OpExternal {
			t.Fatalf("op = %s, want external", c.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no signal after write")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "store.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
