package users

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"ytdlp-telegram-bot/internal/domain"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// TestOpenFileStoreCreatesMissingFile checks first-run behavior.
func TestOpenFileStoreCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "users.json")
	store, err := OpenFileStore(path, quietLogger())
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}
	if len(store.Keys()) != 0 {
		t.Fatalf("keys = %v, want none", store.Keys())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("file = %q, want {}", data)
	}
}

// TestFileStoreSetPersists verifies write-through and reopen fidelity.
func TestFileStoreSetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := OpenFileStore(path, quietLogger())
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}

	want := domain.UserRecord{UserID: 42, ChatID: 42, FirstName: "Ada", Auth: true}
	if err := store.Set(Key(42), want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened, err := OpenFileStore(path, quietLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get("42")
	if !ok || got != want {
		t.Fatalf("Get() = %+v, %v, want %+v", got, ok, want)
	}
	if !reopened.Has("42") || reopened.Has("43") {
		t.Fatal("Has() mismatch")
	}
}

// TestFileStoreGetReloadsExternalEdits checks operator edits are seen.
func TestFileStoreGetReloadsExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := OpenFileStore(path, quietLogger())
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"7":{"userId":7,"chatId":7,"auth":true}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, ok := store.Get("7")
	if !ok || !got.Auth || got.UserID != 7 {
		t.Fatalf("Get() = %+v, %v", got, ok)
	}
}

// TestFileStoreResetsCorruptFile checks parse error handling.
func TestFileStoreResetsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := OpenFileStore(path, quietLogger())
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}
	if len(store.Keys()) != 0 {
		t.Fatalf("keys = %v, want none", store.Keys())
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{}" {
		t.Fatalf("file = %q, want reset to {}", data)
	}
}

// TestFileStoreWatchReloads verifies disk changes reach Has without a Get.
func TestFileStoreWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := OpenFileStore(path, quietLogger())
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"9":{"userId":9,"chatId":9,"auth":false}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !store.Has("9") {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not reload users file")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// TestMemoryStoreKeysSorted checks the in-memory store.
func TestMemoryStoreKeysSorted(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Set("20", domain.UserRecord{UserID: 20})
	_ = store.Set("10", domain.UserRecord{UserID: 10})

	keys := store.Keys()
	if len(keys) != 2 || keys[0] != "10" || keys[1] != "20" {
		t.Fatalf("keys = %v", keys)
	}
	if _, ok := store.Get("30"); ok {
		t.Fatal("unexpected record")
	}
}
