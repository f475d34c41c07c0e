package bolt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/koniz-dev/grex-sub004/kv"
)

// kvBucket is the single bucket holding every key value pair.
var kvBucket = []byte("keyvaluev1")

// KVStore is a kv.Store backed by boltdb.
type KVStore struct {
	path   string
	db     *bolt.DB
	logger *zap.Logger
	noSync bool
}

var _ kv.Store = (*KVStore)(nil)

// KVOption configures a KVStore.
type KVOption func(*KVStore)

// WithNoSync disables fsync on every commit. Writes are no longer durable
// across power loss; only suitable for tests and throwaway tooling runs.
func WithNoSync() KVOption {
	return func(s *KVStore) {
		s.noSync = true
	}
}

// NewKVStore returns an instance of KVStore with the file at
// the provided path.
func NewKVStore(path string, opts ...KVOption) *KVStore {
	s := &KVStore{
		path:   path,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the boltdb file if it doesn't exist and opens it otherwise.
// The bucket holding key value pairs is created up front so every later
// operation can assume it exists.
func (s *KVStore) Open(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "KVStore.Open")
	defer span.Finish()

	// Ensure the required directory structure exists.
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("unable to create directory %s: %v", s.path, err)
	}

	if _, err := os.Stat(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("unable to open boltdb file %v", err)
	}
	db.NoSync = s.noSync
	s.db = db

	if err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kvBucket)
		return err
	}); err != nil {
		return fmt.Errorf("unable to initialize kv bucket: %v", err)
	}

	s.logger.Info("Resources opened", zap.String("path", s.path))
	return nil
}

// Close the connection to the bolt database.
func (s *KVStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// WithLogger sets the logger on the store.
func (s *KVStore) WithLogger(l *zap.Logger) {
	s.logger = l
}

// WithDB sets the boltdb on the store.
func (s *KVStore) WithDB(db *bolt.DB) {
	s.db = db
}

// view opens a read transaction scoped to the kv bucket.
func (s *KVStore) view(ctx context.Context, op string, fn func(b *bolt.Bucket) error) error {
	span, _ := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", kvBucket)
		}
		return fn(b)
	})
}

// update opens a write transaction scoped to the kv bucket.
func (s *KVStore) update(ctx context.Context, op string, fn func(b *bolt.Bucket) error) error {
	span, _ := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", kvBucket)
		}
		return fn(b)
	})
}

// GetString retrieves the value at the provided key.
func (s *KVStore) GetString(ctx context.Context, key string) (string, error) {
	var value string
	err := s.view(ctx, "KVStore.GetString", func(b *bolt.Bucket) error {
		// Seek through a cursor rather than Get so that keys holding the
		// empty string are distinguishable from absent keys.
		k, v := b.Cursor().Seek([]byte(key))
		if k == nil || !bytes.Equal(k, []byte(key)) {
			return kv.ErrKeyNotFound
		}
		value = string(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetString sets the key value pair provided.
func (s *KVStore) SetString(ctx context.Context, key, value string) error {
	return s.update(ctx, "KVStore.SetString", func(b *bolt.Bucket) error {
		return b.Put([]byte(key), []byte(value))
	})
}

// GetInt retrieves the integer value at the provided key.
func (s *KVStore) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := s.GetString(ctx, key)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse integer at %q: %w", key, err)
	}
	return n, nil
}

// SetInt sets the key to the provided integer value.
func (s *KVStore) SetInt(ctx context.Context, key string, value int64) error {
	return s.SetString(ctx, key, strconv.FormatInt(value, 10))
}

// Remove removes the key provided. Removing an absent key is a no-op.
func (s *KVStore) Remove(ctx context.Context, key string) error {
	return s.update(ctx, "KVStore.Remove", func(b *bolt.Bucket) error {
		return b.Delete([]byte(key))
	})
}

// ContainsKey reports whether the key holds a value.
func (s *KVStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	var found bool
	err := s.view(ctx, "KVStore.ContainsKey", func(b *bolt.Bucket) error {
		k, _ := b.Cursor().Seek([]byte(key))
		found = k != nil && bytes.Equal(k, []byte(key))
		return nil
	})
	return found, err
}

// Flush removes all keys from the store.
func (s *KVStore) Flush(ctx context.Context) {
	_ = s.update(ctx, "KVStore.Flush", func(b *bolt.Bucket) error {
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}
