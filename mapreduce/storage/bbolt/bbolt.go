package bbolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/bektastalayoglu/MapReduce/pkg/caller"
	"github.com/bektastalayoglu/MapReduce/pkg/tracer"
)

// BboltStorage keeps shuffle groups in a bbolt file. Every key is a
// nested bucket holding one entry per value under an increasing sequence
// number, so values come back in append order without rewriting the
// whole group on every append.
type BboltStorage struct {
	db *bbolt.DB
}

// New opens (or creates) the database at path. The file is scratch space:
// syncing is disabled.
func New(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 30 * time.Second, NoSync: true})
	if err != nil {
		return nil, fmt.Errorf("create bolt storage: %w", err)
	}

	return &BboltStorage{
		db: db,
	}, nil
}

func (s *BboltStorage) Append(ctx context.Context, bucket string, key string, vals [][]byte) error {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		buck, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		group, err := buck.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}

		for _, val := range vals {
			seq, err := group.NextSequence()
			if err != nil {
				return err
			}

			if err := group.Put(seqKey(seq), val); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("append to %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (s *BboltStorage) Get(ctx context.Context, bucket string, key string) ([][]byte, error) {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	var vals [][]byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		buck := tx.Bucket([]byte(bucket))
		if buck == nil {
			return nil
		}

		group := buck.Bucket([]byte(key))
		if group == nil {
			return nil
		}

		// values are only valid for the life of the transaction
		return group.ForEach(func(_, v []byte) error {
			vals = append(vals, append([]byte(nil), v...))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}

	return vals, nil
}

func (s *BboltStorage) Keys(ctx context.Context, bucket string) ([]string, error) {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	var keys []string

	err := s.db.View(func(tx *bbolt.Tx) error {
		buck := tx.Bucket([]byte(bucket))
		if buck == nil {
			return nil
		}

		c := buck.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("keys of %s: %w", bucket, err)
	}

	return keys, nil
}

func (s *BboltStorage) Drop(ctx context.Context, bucket string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(bucket))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}

		return err
	})
	if err != nil {
		return fmt.Errorf("drop %s: %w", bucket, err)
	}

	return nil
}

// Close must be call to release database connection.
func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// Destroy closes the database and removes the file.
func (s *BboltStorage) Destroy() error {
	path := s.db.Path()
	_ = s.Close()
	return os.Remove(path)
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
