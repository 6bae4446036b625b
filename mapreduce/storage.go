package mapreduce

import "context"

// Storage holds the intermediate groups of a shuffle. Reducers append the
// values they receive and read them back once the map phase is over.
//
// Bucket corresponds to one reducer of one stage of one run (so their
// values won't mix). Keys are encoded keys, values are encoded values.
// Get must return values in append order.
type Storage interface {
	Append(ctx context.Context, bucket string, key string, vals [][]byte) error
	Get(ctx context.Context, bucket string, key string) ([][]byte, error)
	Keys(ctx context.Context, bucket string) ([]string, error)
	Drop(ctx context.Context, bucket string) error
}
