package blob

import (
	"context"
	"sync"

	dErrors "datashare/pkg/domain-errors"
)

// MemoryStore keeps blobs in process memory. Refs are "mem://" + key.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]Object
}

const memScheme = "mem://"

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]Object)}
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = Object{
		Content:     append([]byte(nil), data...),
		ContentType: contentType,
	}
	return memScheme + key, nil
}

func (s *MemoryStore) Fetch(_ context.Context, ref string) (*Object, error) {
	key, ok := trimScheme(ref)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown blob reference")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, found := s.blobs[key]
	if !found {
		return nil, dErrors.New(dErrors.CodeNotFound, "file not found in blob store")
	}
	out := Object{
		Content:     append([]byte(nil), obj.Content...),
		ContentType: obj.ContentType,
	}
	return &out, nil
}

func trimScheme(ref string) (string, bool) {
	if len(ref) <= len(memScheme) || ref[:len(memScheme)] != memScheme {
		return "", false
	}
	return ref[len(memScheme):], true
}
