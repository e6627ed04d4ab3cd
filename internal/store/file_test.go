package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zhouzirui/z-tavern/relay/internal/model/chat"
)

func sampleSession() chat.Session {
	session := chat.NewSession("You are the warden.")
	session.History = append(session.History,
		chat.Turn{Role: chat.RoleUser, Content: "hello"},
		chat.Turn{Role: chat.RoleAssistant, Content: "welcome, prisoner"},
	)
	return session
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}
	ctx := context.Background()

	if err := fs.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("Save err: %v", err)
	}
	got, err := fs.Load(ctx)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if got.SystemPrompt != "You are the warden." || len(got.History) != 2 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.History[1].Role != chat.RoleAssistant {
		t.Fatalf("expected assistant turn, got %s", got.History[1].Role)
	}
}

func TestFileStoreWritesDocumentedShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	fs, _ := NewFileStore(path)
	if err := fs.Save(context.Background(), chat.Session{SystemPrompt: "sys"}); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["system_prompt"]) != `"sys"` {
		t.Fatalf("unexpected system_prompt: %s", raw["system_prompt"])
	}
	if string(raw["history"]) != "[]" {
		t.Fatalf("expected empty history array, got %s", raw["history"])
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	fs, _ := NewFileStore(filepath.Join(t.TempDir(), "none.json"))
	if _, err := fs.Load(context.Background()); !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("expected ErrNoTranscript, got %v", err)
	}
}

func TestFileStoreLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs, _ := NewFileStore(path)
	if _, err := fs.Load(context.Background()); !errors.Is(err, ErrMalformedTranscript) {
		t.Fatalf("expected ErrMalformedTranscript, got %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"system_prompt":"s","history":[{"role":"narrator","content":"x"}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := fs.Load(context.Background()); !errors.Is(err, ErrMalformedTranscript) {
		t.Fatalf("expected ErrMalformedTranscript for unknown role, got %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", "x"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
