package attachment

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"overlaycast/internal/logging"
)

func newTestStore() *Store {
	return NewStore(logging.NewLogger())
}

func TestAddGetRoundTrip(t *testing.T) {
	s := newTestStore()
	payloads := [][]byte{
		[]byte("x"),
		[]byte("hello overlay"),
		bytes.Repeat([]byte{0x00, 0xff, 0x7f}, 1024),
	}
	for i, data := range payloads {
		key, err := s.AddBytes("a", "/tmp/a.png", data)
		if err != nil {
			t.Fatalf("AddBytes failed: %v", err)
		}
		got, err := s.Get(s.Resolve("a"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("payload %d: round trip mismatch", i)
		}
		if key != s.Resolve("a") {
			t.Fatalf("expected resolved key %q, got %q", key, s.Resolve("a"))
		}
	}
}

func TestAddReadsSourceFile(t *testing.T) {
	data := []byte("image bytes")
	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s := newTestStore()
	key, err := s.Add("pic", path)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if s.Keys()["pic"] != key {
		t.Fatalf("expected Keys to map pic to %q", key)
	}
	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("fetched attachment differs from source file")
	}
}

func TestAddMissingSourceFails(t *testing.T) {
	s := newTestStore()
	if _, err := s.Add("gone", filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatalf("expected error for unreadable source")
	}
	if s.Len() != 0 {
		t.Fatalf("failed add must not modify the store")
	}
}

func TestDeriveKeyStableWithExtension(t *testing.T) {
	k1 := DeriveKey("/tmp/pic.png")
	k2 := DeriveKey("/tmp/pic.png")
	if k1 != k2 {
		t.Fatalf("key derivation not deterministic: %q vs %q", k1, k2)
	}
	if !strings.HasSuffix(k1, ".png") {
		t.Fatalf("expected key to keep extension, got %q", k1)
	}
	if DeriveKey("/tmp/other.png") == k1 {
		t.Fatalf("different paths must derive different keys")
	}
	if strings.ContainsAny(k1, "/\\") {
		t.Fatalf("key must not contain path separators: %q", k1)
	}
	if ext := filepath.Ext(DeriveKey("noext")); ext != "" {
		t.Fatalf("expected no extension, got %q", ext)
	}
}

func TestResolvePassthrough(t *testing.T) {
	s := newTestStore()
	if got := s.Resolve("unknown.png"); got != "unknown.png" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := s.Resolve("http://cdn.example/x.png"); got != "http://cdn.example/x.png" {
		t.Fatalf("expected passthrough for URL, got %q", got)
	}
}

func TestGetUnknownKey(t *testing.T) {
	s := newTestStore()
	if _, err := s.Get("nope.png"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStore()
	key, err := s.AddBytes("a", "/tmp/a.png", []byte("data"))
	if err != nil {
		t.Fatalf("AddBytes failed: %v", err)
	}

	s.Remove("a")
	if _, err := s.Get(key); err != ErrNotFound {
		t.Fatalf("expected payload gone after remove, got %v", err)
	}
	if _, ok := s.Keys()["a"]; ok {
		t.Fatalf("expected name mapping gone after remove")
	}

	// Removing again, or removing a name that never existed, is a no-op
	s.Remove("a")
	s.Remove("never-added")
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestReAddOverwrites(t *testing.T) {
	s := newTestStore()
	if _, err := s.AddBytes("a", "/tmp/old.png", []byte("old")); err != nil {
		t.Fatalf("AddBytes failed: %v", err)
	}
	newKey, err := s.AddBytes("a", "/tmp/new.png", []byte("new"))
	if err != nil {
		t.Fatalf("AddBytes failed: %v", err)
	}
	if s.Resolve("a") != newKey {
		t.Fatalf("expected name to resolve to the new key")
	}
	got, err := s.Get(newKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("expected new payload, got %q", got)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore()
	if _, err := s.AddBytes("a", "/tmp/a.png", []byte("a")); err != nil {
		t.Fatalf("AddBytes failed: %v", err)
	}
	if _, err := s.AddBytes("b", "/tmp/b.ogg", []byte("b")); err != nil {
		t.Fatalf("AddBytes failed: %v", err)
	}
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty store after clear")
	}
	if len(s.Keys()) != 0 {
		t.Fatalf("expected no keys after clear")
	}
}
