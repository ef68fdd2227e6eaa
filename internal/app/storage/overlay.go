package storage

import (
	"context"
	"sort"
	"strings"
)

type staged struct {
	value   []byte
	deleted bool
}

// Overlay stages writes on top of a KVReader so a backend without native
// transactions can commit them in one batch. Reads see staged writes.
type Overlay struct {
	base   KVReader
	writes map[string]staged
}

var _ KVTx = (*Overlay)(nil)

// NewOverlay creates an empty overlay reading through to base.
func NewOverlay(base KVReader) *Overlay {
	return &Overlay{base: base, writes: make(map[string]staged)}
}

func (o *Overlay) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if w, ok := o.writes[key]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return cloneBytes(w.value), true, nil
	}
	return o.base.Get(ctx, key)
}

func (o *Overlay) Scan(ctx context.Context, prefix string) ([]KVPair, error) {
	baseRows, err := o.base.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string][]byte, len(baseRows))
	for _, row := range baseRows {
		merged[row.Key] = row.Value
	}
	for key, w := range o.writes {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if w.deleted {
			delete(merged, key)
			continue
		}
		merged[key] = w.value
	}

	out := make([]KVPair, 0, len(merged))
	for key, value := range merged {
		out = append(out, KVPair{Key: key, Value: cloneBytes(value)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (o *Overlay) Put(_ context.Context, key string, value []byte) error {
	o.writes[key] = staged{value: cloneBytes(value)}
	return nil
}

func (o *Overlay) Delete(_ context.Context, key string) error {
	o.writes[key] = staged{deleted: true}
	return nil
}

func (o *Overlay) DeletePrefix(ctx context.Context, prefix string) error {
	rows, err := o.base.Scan(ctx, prefix)
	if err != nil {
		return err
	}
	for _, row := range rows {
		o.writes[row.Key] = staged{deleted: true}
	}
	for key := range o.writes {
		if strings.HasPrefix(key, prefix) {
			o.writes[key] = staged{deleted: true}
		}
	}
	return nil
}

// Changes returns the staged puts and deletes in key order.
func (o *Overlay) Changes() (puts []KVPair, deletes []string) {
	keys := make([]string, 0, len(o.writes))
	for key := range o.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		w := o.writes[key]
		if w.deleted {
			deletes = append(deletes, key)
			continue
		}
		puts = append(puts, KVPair{Key: key, Value: w.value})
	}
	return puts, deletes
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
