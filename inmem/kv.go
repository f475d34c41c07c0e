package inmem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/btree"

	"github.com/koniz-dev/grex-sub004/kv"
)

// KVStore is an in memory btree backed kv.Store. It is the default store for
// tests and for tooling invoked with the memory backend.
type KVStore struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

var _ kv.Store = (*KVStore)(nil)

// NewKVStore creates an instance of a KVStore.
func NewKVStore() *KVStore {
	return &KVStore{
		tree: btree.New(2),
	}
}

type item struct {
	key   string
	value string
}

// Less is used to implement btree.Item.
func (i *item) Less(b btree.Item) bool {
	j, ok := b.(*item)
	if !ok {
		return false
	}

	return i.key < j.key
}

// GetString retrieves the value at the provided key.
func (s *KVStore) GetString(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.tree.Get(&item{key: key})
	if i == nil {
		return "", kv.ErrKeyNotFound
	}

	j, ok := i.(*item)
	if !ok {
		return "", fmt.Errorf("error item is type %T not *item", i)
	}

	return j.value, nil
}

// SetString sets the key value pair provided.
func (s *KVStore) SetString(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.tree.ReplaceOrInsert(&item{key: key, value: value})
	return nil
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
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.tree.Delete(&item{key: key})
	return nil
}

// ContainsKey reports whether the key holds a value.
func (s *KVStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tree.Has(&item{key: key}), nil
}

// Len returns the number of stored keys. It is a testing convenience.
func (s *KVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tree.Len()
}

// Flush removes every key from the store.
func (s *KVStore) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.Clear(false)
}
