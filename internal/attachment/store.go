package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"

	"overlaycast/internal/logging"
)

// ErrNotFound is returned by Get when no payload exists for a key.
var ErrNotFound = errors.New("attachment not found")

// Store caches binary media in memory, keyed by a stable hash of the
// source path. Payloads are held gzip-compressed and decompressed on read.
type Store struct {
	mu       sync.RWMutex
	payloads map[string][]byte // key -> compressed bytes
	keys     map[string]string // name -> key
	logger   logging.Logger
}

// NewStore creates an empty attachment store
func NewStore(logger logging.Logger) *Store {
	return &Store{
		payloads: make(map[string][]byte),
		keys:     make(map[string]string),
		logger:   logger,
	}
}

// DeriveKey converts a source path into a stable, URL-safe key. The hash is
// deterministic across process restarts so serving URLs stay valid, and the
// original extension is kept for content-type hinting.
func DeriveKey(path string) string {
	return fmt.Sprintf("%016x%s", xxhash.Sum64String(path), filepath.Ext(path))
}

// Add reads the file at path, compresses it and stores it under name.
// Re-adding an existing name overwrites its mapping.
func (s *Store) Add(name, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read attachment source: %w", err)
	}
	return s.AddBytes(name, path, data)
}

// AddBytes stores data under name with a key derived from path.
func (s *Store) AddBytes(name, path string, data []byte) (string, error) {
	compressed, err := compress(data)
	if err != nil {
		return "", fmt.Errorf("compress attachment: %w", err)
	}
	key := DeriveKey(path)

	s.mu.Lock()
	s.payloads[key] = compressed
	s.keys[name] = key
	s.mu.Unlock()

	s.logger.WithFields(logging.Fields{
		"name": name,
		"key":  key,
		"size": len(data),
	}).Debug("Attachment loaded into memory")
	return key, nil
}

// Resolve returns the key registered for name. Unknown values pass through
// unchanged so callers can hand in keys or absolute URLs directly.
func (s *Store) Resolve(nameOrKey string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.keys[nameOrKey]; ok {
		return key
	}
	return nameOrKey
}

// Get returns the decompressed payload for key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	compressed, ok := s.payloads[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return decompress(compressed)
}

// Remove deletes the name and its payload. Unknown names are a no-op.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[name]
	if !ok {
		return
	}
	delete(s.keys, name)
	delete(s.payloads, key)
	s.logger.WithField("name", name).Debug("Attachment removed")
}

// Clear empties the store
func (s *Store) Clear() {
	s.mu.Lock()
	s.payloads = make(map[string][]byte)
	s.keys = make(map[string]string)
	s.mu.Unlock()
	s.logger.Debug("All attachments cleared from memory")
}

// Keys returns a copy of the name -> key mapping
func (s *Store) Keys() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[string]string, len(s.keys))
	for name, key := range s.keys {
		keys[name] = key
	}
	return keys
}

// Len returns the number of named attachments
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(compressed []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
