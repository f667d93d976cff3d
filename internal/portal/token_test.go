package portal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTokenStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := newTokenStore(dir)

	state := tokenState{Value: "abc123"}
	store.ensureClientID(&state)
	if state.ClientID == "" {
		t.Fatal("ensureClientID should generate an identifier")
	}
	if err := store.save(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Value != "abc123" {
		t.Fatalf("loaded token %q, want abc123", loaded.Value)
	}
	if loaded.ClientID != state.ClientID {
		t.Fatalf("client id changed across save/load: %q vs %q", loaded.ClientID, state.ClientID)
	}
}

func TestTokenStoreMissingFileIsEmptyState(t *testing.T) {
	store := newTokenStore(t.TempDir())
	state, err := store.load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if state.Value != "" || state.ClientID != "" {
		t.Fatalf("missing file should yield empty state, got %+v", state)
	}
}

func TestTokenStoreCorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, tokenFileName), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	store := newTokenStore(dir)
	state, err := store.load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if state.Value != "" {
		t.Fatalf("corrupt file should yield empty state, got %+v", state)
	}
}

func TestEnsureClientIDKeepsExisting(t *testing.T) {
	store := newTokenStore(t.TempDir())
	state := tokenState{Value: "tok", ClientID: "keep-me"}
	store.ensureClientID(&state)
	if state.ClientID != "keep-me" {
		t.Fatalf("ensureClientID overwrote existing id: %q", state.ClientID)
	}
}
