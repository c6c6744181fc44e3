package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// Persisted is what survives a restart: the opaque credential and the
// cached identity.  Both are written together and cleared together.
type Persisted struct {
	Credential string          `json:"credential"`
	Identity   *model.Identity `json:"identity"`
}

// Complete reports whether both halves are present.  A half-written record
// is treated as no session at all.
func (p Persisted) Complete() bool {
	return p.Credential != "" && p.Identity != nil
}

// Store persists the session between process starts.  Load returns a zero
// Persisted and a nil error when nothing has been saved.
type Store interface {
	Load(ctx context.Context) (Persisted, error)
	Save(ctx context.Context, p Persisted) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session for the lifetime of the process only.
type MemoryStore struct {
	mu sync.Mutex
	p  Persisted
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (Persisted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPersisted(s.p), nil
}

func (s *MemoryStore) Save(ctx context.Context, p Persisted) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = copyPersisted(p)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = Persisted{}
	return nil
}

func copyPersisted(p Persisted) Persisted {
	if p.Identity != nil {
		id := *p.Identity
		p.Identity = &id
	}
	return p
}

const sessionFile = "session.json"

// FileStore keeps the session in a single JSON file readable only by the
// current user.  Writes go through a temp file and a rename so a crash
// never leaves the credential without its identity.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore stores the session under dir, creating it when missing.
// An empty dir means ~/.parcel.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dir = filepath.Join(home, ".parcel")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, sessionFile)}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Persisted, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Persisted{}, nil
		}
		return Persisted{}, fmt.Errorf("failed to read session file: %w", err)
	}
	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return Persisted{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return p, nil
}

func (s *FileStore) Save(ctx context.Context, p Persisted) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
