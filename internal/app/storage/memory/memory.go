package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/R3E-Network/prudent-pots/internal/app/storage"
)

// Store is an in-memory key-value backend. Update holds the write lock for
// the whole unit of work, so actions are serialised and a failed action
// leaves no trace. It is primarily intended for tests, replay and local
// development.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Backend = (*Store)(nil)
var _ storage.KVReader = (*reader)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// NewState is shorthand for a typed state store backed by a fresh memory backend.
func NewState() storage.Store {
	return storage.New(New())
}

func (s *Store) Update(ctx context.Context, fn func(tx storage.KVTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	overlay := storage.NewOverlay(&reader{data: s.data})
	if err := fn(overlay); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	puts, deletes := overlay.Changes()
	for _, key := range deletes {
		delete(s.data, key)
	}
	for _, kv := range puts {
		s.data[kv.Key] = kv.Value
	}
	return nil
}

func (s *Store) Read(_ context.Context, fn func(tx storage.KVTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(storage.NewOverlay(&reader{data: s.data}))
}

// Len reports the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

type reader struct {
	data map[string][]byte
}

func (r *reader) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := r.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (r *reader) Scan(_ context.Context, prefix string) ([]storage.KVPair, error) {
	var out []storage.KVPair
	for key, v := range r.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		value := make([]byte, len(v))
		copy(value, v)
		out = append(out, storage.KVPair{Key: key, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
