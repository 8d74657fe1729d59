package blob

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryBlob struct {
	data []byte
	obj  Object
}

// MemoryStore keeps blobs in process memory. Used for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
	urls  URLs
	now   func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore(urls URLs) *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]memoryBlob),
		urls:  urls,
		now:   time.Now,
	}
}

// List returns blobs whose key starts with prefix, sorted by key
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Object, 0)
	for key, b := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			out = append(out, b.obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get returns a copy of the blob content
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, Object{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, Object{}, ErrNotFound
	}
	return append([]byte(nil), b.data...), b.obj, nil
}

// Put stores content under key
func (s *MemoryStore) Put(ctx context.Context, key string, content []byte, opts PutOptions) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if err := ValidateKey(key); err != nil {
		return Object{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blobs[key]; exists && !opts.Overwrite {
		return Object{}, ErrExists
	}

	obj := Object{
		Key:         key,
		URL:         s.urls.For(key),
		Size:        int64(len(content)),
		ContentType: opts.ContentType,
		Public:      opts.Public,
		UploadedAt:  s.now().UTC(),
	}
	s.blobs[key] = memoryBlob{data: append([]byte(nil), content...), obj: obj}
	return obj, nil
}

// Delete removes a blob; deleting a missing key is not an error
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, key)
	return nil
}
