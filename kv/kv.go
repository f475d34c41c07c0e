package kv

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is the error returned when the key requested is not found.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyReserved is the error returned when a key is reserved for internal
	// use by the store or by the migration engine and may not be accessed.
	ErrKeyReserved = errors.New("key is reserved")
)

// Store is an interface for a flat, string-keyed key value store. It is
// modeled after the preference stores shipped with the client application:
// a general-purpose store for plain settings and a hardened store for
// sensitive material both satisfy it.
//
// All operations take a context since every backend call is a potential
// suspension point; implementations must be safe for concurrent use.
type Store interface {
	// GetString returns the string value at key. Implementations return
	// ErrKeyNotFound when the key is absent.
	GetString(ctx context.Context, key string) (string, error)
	// SetString stores value at key, overwriting any previous value.
	SetString(ctx context.Context, key, value string) error
	// GetInt returns the integer value at key. Implementations return
	// ErrKeyNotFound when the key is absent.
	GetInt(ctx context.Context, key string) (int64, error)
	// SetInt stores value at key, overwriting any previous value.
	SetInt(ctx context.Context, key string, value int64) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// ContainsKey reports whether key holds a value.
	ContainsKey(ctx context.Context, key string) (bool, error)
}

// IsNotFound reports whether err is caused by an absent key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
