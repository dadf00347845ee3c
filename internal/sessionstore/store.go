// Package sessionstore is the Session Store collaborator (spec.md
// §3, §9): the exclusive owner of SessionState, persisted one JSON
// file per session under a state directory with write-then-rename
// atomicity, following internal/registry's on-disk registry pattern.
package sessionstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DRCubix/gansauditor-codex/internal/thought"
)

// ErrCorrupted is returned (and swallowed by callers) when a session
// file fails to unmarshal.
var ErrCorrupted = errors.New("session file corrupted")

// Store persists SessionState, one JSON file per session, keyed by
// session id. Each session's exclusive lock also serializes Orchestrator
// audit cycles for that key (spec.md §4.1 "per-session serialization"),
// so Store doubles as the FIFO mailbox home: callers take the lock via
// Lock/Unlock around a full audit cycle.
type Store struct {
	mu        sync.Mutex // guards sessionLocks map only
	dir       string
	sessionLocks map[string]*sync.Mutex
}

// New creates a Store rooted at dir (default ".mcp-gan-state"),
// creating the directory if absent.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = ".mcp-gan-state"
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session state dir: %w", err)
	}
	return &Store{
		dir:          dir,
		sessionLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Lock returns the exclusive per-session mutex for key, creating it on
// first reference. Callers must Unlock after the audit cycle completes,
// enforcing the FIFO ordering spec.md §4.1/§5 requires within one key.
func (s *Store) Lock(key string) *sync.Mutex {
	s.mu.Lock()
	l, ok := s.sessionLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.sessionLocks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load reads a session by id. A missing file is not an error: ok is
// false and state is nil. A corrupted file returns ErrCorrupted so the
// Orchestrator can create a fresh session and log a warning, per
// spec.md §4.1's session-resolution failure semantics.
func (s *Store) Load(id string) (state *thought.SessionState, ok bool, err error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var st thought.SessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return &st, true, nil
}

// New creates a fresh SessionState for id with the given config.
func NewSession(id string, cfg thought.SessionConfig) *thought.SessionState {
	now := time.Now()
	return &thought.SessionState{
		ID:        id,
		Config:    cfg,
		History:   []thought.AuditEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Save atomically persists state, following internal/registry's
// write-to-temp-then-rename pattern.
func (s *Store) Save(state *thought.SessionState) error {
	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	path := s.path(state.ID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename session state: %w", err)
	}

	return nil
}

// StableKey derives a deterministic session key from a working
// directory, a user identity, and a coarse timestamp bucket (spec.md
// §4.1 "generated stable key"), used when the caller supplies no
// explicit branchId. The timestamp bucket is hour-granularity so
// thoughts submitted in quick succession within the same working
// directory and identity resolve to the same session.
func StableKey(workingDir, identity string, bucket time.Time) string {
	h := sha256.New()
	h.Write([]byte(workingDir))
	h.Write([]byte{0})
	h.Write([]byte(identity))
	h.Write([]byte{0})
	h.Write([]byte(bucket.UTC().Truncate(time.Hour).Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// NewID generates a random session id for callers that have no stable
// derivation available (mirrors registry.Entry.UUID).
func NewID() string {
	return uuid.NewString()
}
