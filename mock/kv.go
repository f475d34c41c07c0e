package mock

import (
	"context"

	"github.com/koniz-dev/grex-sub004/kv"
)

var _ kv.Store = (*Store)(nil)

// Store is a mock kv.Store. Every operation delegates to the matching
// function field, so tests can script exact behavior per call.
type Store struct {
	GetStringFn   func(ctx context.Context, key string) (string, error)
	SetStringFn   func(ctx context.Context, key, value string) error
	GetIntFn      func(ctx context.Context, key string) (int64, error)
	SetIntFn      func(ctx context.Context, key string, value int64) error
	RemoveFn      func(ctx context.Context, key string) error
	ContainsKeyFn func(ctx context.Context, key string) (bool, error)
}

// NewStore returns a mock whose operations all delegate to backing, ready
// for selective overriding of individual function fields.
func NewStore(backing kv.Store) *Store {
	return &Store{
		GetStringFn:   backing.GetString,
		SetStringFn:   backing.SetString,
		GetIntFn:      backing.GetInt,
		SetIntFn:      backing.SetInt,
		RemoveFn:      backing.Remove,
		ContainsKeyFn: backing.ContainsKey,
	}
}

// GetString retrieves the value at the provided key.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	return s.GetStringFn(ctx, key)
}

// SetString sets the key value pair provided.
func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.SetStringFn(ctx, key, value)
}

// GetInt retrieves the integer value at the provided key.
func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	return s.GetIntFn(ctx, key)
}

// SetInt sets the key to the provided integer value.
func (s *Store) SetInt(ctx context.Context, key string, value int64) error {
	return s.SetIntFn(ctx, key, value)
}

// Remove removes the key provided.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.RemoveFn(ctx, key)
}

// ContainsKey reports whether the key holds a value.
func (s *Store) ContainsKey(ctx context.Context, key string) (bool, error) {
	return s.ContainsKeyFn(ctx, key)
}
