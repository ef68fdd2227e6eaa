// Package redis implements the raw key-value backend on Redis. Writes are
// staged in memory and flushed in one MULTI/EXEC guarded by WATCH on a
// version key, so concurrent writers never interleave. Reads watch the same
// key and rerun when a commit lands underneath them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/prudent-pots/internal/app/storage"
)

const (
	defaultNamespace = "pots:"
	versionKey       = "__version"
	scanBatch        = 256
	maxAttempts      = 3
)

// Store implements storage.Backend on a go-redis client.
type Store struct {
	client    redis.UniversalClient
	namespace string
}

var _ storage.Backend = (*Store)(nil)

// New wraps client. An empty namespace uses "pots:".
func New(client redis.UniversalClient, namespace string) *Store {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Store{client: client, namespace: namespace}
}

// NewState wraps the backend with the typed entity API.
func NewState(client redis.UniversalClient, namespace string) storage.Store {
	return storage.New(New(client, namespace))
}

func (s *Store) Update(ctx context.Context, fn func(tx storage.KVTx) error) error {
	return s.watch(ctx, "update", func(rtx *redis.Tx) error {
		overlay := storage.NewOverlay(&reader{cmd: rtx, ns: s.namespace})
		if err := fn(overlay); err != nil {
			return err
		}
		puts, deletes := overlay.Changes()
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range deletes {
				pipe.Del(ctx, s.namespace+key)
			}
			for _, kv := range puts {
				pipe.Set(ctx, s.namespace+kv.Key, kv.Value, 0)
			}
			pipe.Incr(ctx, s.namespace+versionKey)
			return nil
		})
		return err
	})
}

// Read runs fn under WATCH on the version key and closes with an empty
// EXEC, so a commit landing between two reads forces a rerun.
func (s *Store) Read(ctx context.Context, fn func(tx storage.KVTx) error) error {
	return s.watch(ctx, "read", func(rtx *redis.Tx) error {
		if err := fn(storage.NewOverlay(&reader{cmd: rtx, ns: s.namespace})); err != nil {
			return err
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Exists(ctx, s.namespace+versionKey)
			return nil
		})
		return err
	})
}

func (s *Store) watch(ctx context.Context, op string, fn func(rtx *redis.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.client.Watch(ctx, fn, s.namespace+versionKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("redis %s: %w", op, lastErr)
}

// commander is the read surface shared by *redis.Tx and the client.
type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

type reader struct {
	cmd commander
	ns  string
}

func (r *reader) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.cmd.Get(ctx, r.ns+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *reader) Scan(ctx context.Context, prefix string) ([]storage.KVPair, error) {
	pattern := escapeGlob(r.ns+prefix) + "*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.cmd.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(keys)

	out := make([]storage.KVPair, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, full := range keys {
		if seen[full] {
			continue
		}
		seen[full] = true
		key := strings.TrimPrefix(full, r.ns)
		v, ok, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, storage.KVPair{Key: key, Value: v})
		}
	}
	return out, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
