package inmemory

import (
	"context"
	"sync"

	"github.com/bektastalayoglu/MapReduce/pkg/caller"
	"github.com/bektastalayoglu/MapReduce/pkg/tracer"
)

// Storage keeps shuffle groups in memory. Keys are returned in the order
// they were first appended.
type Storage struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

type bucket struct {
	keys []string
	vals map[string][][]byte
}

func New() *Storage {
	return &Storage{
		buckets: make(map[string]*bucket),
	}
}

func (st *Storage) Append(ctx context.Context, bucketName string, key string, vals [][]byte) error {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	st.mu.Lock()
	defer st.mu.Unlock()

	b, ok := st.buckets[bucketName]
	if !ok {
		b = &bucket{vals: make(map[string][][]byte)}
		st.buckets[bucketName] = b
	}

	if _, ok := b.vals[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.vals[key] = append(b.vals[key], vals...)

	return nil
}

func (st *Storage) Get(ctx context.Context, bucketName string, key string) ([][]byte, error) {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	st.mu.RLock()
	defer st.mu.RUnlock()

	b, ok := st.buckets[bucketName]
	if !ok {
		return nil, nil
	}

	return b.vals[key], nil
}

func (st *Storage) Keys(ctx context.Context, bucketName string) ([]string, error) {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	st.mu.RLock()
	defer st.mu.RUnlock()

	b, ok := st.buckets[bucketName]
	if !ok {
		return nil, nil
	}

	keys := make([]string, len(b.keys))
	copy(keys, b.keys)

	return keys, nil
}

func (st *Storage) Drop(ctx context.Context, bucketName string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.buckets, bucketName)

	return nil
}

// Len returns the number of live buckets.
func (st *Storage) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return len(st.buckets)
}
