package artifact

import (
	"context"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
)

// MemoryStore holds encoded blobs in process memory. Loads decode a fresh
// copy, so callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	// FailStore, when set, is returned by Store without changing contents.
	FailStore error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Exists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range Blobs {
		if _, ok := s.blobs[name]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *MemoryStore) Load(ctx context.Context) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blobs) == 0 {
		return nil, apperrors.ErrArtifactNotFound
	}
	return decode(s.blobs)
}

func (s *MemoryStore) Store(ctx context.Context, a *Artifact) error {
	if s.FailStore != nil {
		return s.FailStore
	}
	if err := checkStorable(a); err != nil {
		return err
	}
	blobs, err := encode(a)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = blobs
	return nil
}

// SetBlob overwrites one raw blob, for simulating partial or damaged writes.
func (s *MemoryStore) SetBlob(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobs == nil {
		s.blobs = make(map[string][]byte)
	}
	if data == nil {
		delete(s.blobs, name)
		return
	}
	s.blobs[name] = data
}

var _ Store = (*MemoryStore)(nil)
