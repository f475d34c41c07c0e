// Package kvtest provides a conformance suite for kv.Store implementations.
//
// Each backend package wires its own constructor into the suite:
//
//	func initKVStore(f kvtest.StoreFields, t *testing.T) (kv.Store, func()) { ... }
//
//	func TestKVStore(t *testing.T) {
//		kvtest.Store(initKVStore, t)
//	}
package kvtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/koniz-dev/grex-sub004/kv"
)

// StoreFields is the data a store is seeded with before a test runs.
type StoreFields struct {
	Pairs map[string]string
}

// InitStoreFn instantiates a store seeded with the provided fields and
// returns it along with a function to close the store after the test.
type InitStoreFn func(f StoreFields, t *testing.T) (kv.Store, func())

// Store runs the full conformance suite against the store produced by init.
func Store(init InitStoreFn, t *testing.T) {
	tests := []struct {
		name string
		fn   func(InitStoreFn, *testing.T)
	}{
		{name: "GetString", fn: StoreGetString},
		{name: "SetString", fn: StoreSetString},
		{name: "GetInt", fn: StoreGetInt},
		{name: "SetInt", fn: StoreSetInt},
		{name: "Remove", fn: StoreRemove},
		{name: "ContainsKey", fn: StoreContainsKey},
		{name: "ConcurrentAccess", fn: StoreConcurrentAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(init, t)
		})
	}
}

// StoreGetString tests retrieval of string values.
func StoreGetString(init InitStoreFn, t *testing.T) {
	type args struct {
		key string
	}
	type wants struct {
		value    string
		notFound bool
	}

	tests := []struct {
		name   string
		fields StoreFields
		args   args
		wants  wants
	}{
		{
			name: "get existing key",
			fields: StoreFields{
				Pairs: map[string]string{"display.theme": "dark"},
			},
			args:  args{key: "display.theme"},
			wants: wants{value: "dark"},
		},
		{
			name:   "get missing key",
			fields: StoreFields{},
			args:   args{key: "display.theme"},
			wants:  wants{notFound: true},
		},
		{
			name: "empty string value round-trips",
			fields: StoreFields{
				Pairs: map[string]string{"profile.bio": ""},
			},
			args:  args{key: "profile.bio"},
			wants: wants{value: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, done := init(tt.fields, t)
			defer done()

			got, err := s.GetString(context.Background(), tt.args.key)
			if tt.wants.notFound {
				require.Error(t, err)
				assert.True(t, kv.IsNotFound(err), "expected not found, got %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wants.value, got)
		})
	}
}

// StoreSetString tests writing string values, including overwrites.
func StoreSetString(init InitStoreFn, t *testing.T) {
	type args struct {
		key   string
		value string
	}

	tests := []struct {
		name   string
		fields StoreFields
		args   args
	}{
		{
			name:   "set new key",
			fields: StoreFields{},
			args:   args{key: "profile.display_name", value: "ada"},
		},
		{
			name: "overwrite existing key",
			fields: StoreFields{
				Pairs: map[string]string{"profile.display_name": "babbage"},
			},
			args: args{key: "profile.display_name", value: "ada"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, done := init(tt.fields, t)
			defer done()

			ctx := context.Background()
			require.NoError(t, s.SetString(ctx, tt.args.key, tt.args.value))

			got, err := s.GetString(ctx, tt.args.key)
			require.NoError(t, err)
			assert.Equal(t, tt.args.value, got)
		})
	}
}

// StoreGetInt tests retrieval of integer values.
func StoreGetInt(init InitStoreFn, t *testing.T) {
	type args struct {
		key string
	}
	type wants struct {
		value    int64
		notFound bool
		err      bool
	}

	tests := []struct {
		name   string
		fields StoreFields
		args   args
		wants  wants
	}{
		{
			name: "get existing integer",
			fields: StoreFields{
				Pairs: map[string]string{"schema_version": "4"},
			},
			args:  args{key: "schema_version"},
			wants: wants{value: 4},
		},
		{
			name: "get negative integer",
			fields: StoreFields{
				Pairs: map[string]string{"clock.skew": "-7"},
			},
			args:  args{key: "clock.skew"},
			wants: wants{value: -7},
		},
		{
			name:   "get missing key",
			fields: StoreFields{},
			args:   args{key: "schema_version"},
			wants:  wants{notFound: true},
		},
		{
			name: "get non-numeric value",
			fields: StoreFields{
				Pairs: map[string]string{"schema_version": "banana"},
			},
			args:  args{key: "schema_version"},
			wants: wants{err: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, done := init(tt.fields, t)
			defer done()

			got, err := s.GetInt(context.Background(), tt.args.key)
			if tt.wants.notFound {
				require.Error(t, err)
				assert.True(t, kv.IsNotFound(err), "expected not found, got %v", err)
				return
			}
			if tt.wants.err {
				require.Error(t, err)
				assert.False(t, kv.IsNotFound(err), "expected a parse failure, got not found")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wants.value, got)
		})
	}
}

// StoreSetInt tests writing integer values.
func StoreSetInt(init InitStoreFn, t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value int64
	}{
		{name: "set zero", key: "schema_version", value: 0},
		{name: "set positive", key: "schema_version", value: 12},
		{name: "set large", key: "cache.size", value: 1 << 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, done := init(StoreFields{}, t)
			defer done()

			ctx := context.Background()
			require.NoError(t, s.SetInt(ctx, tt.key, tt.value))

			got, err := s.GetInt(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

// StoreRemove tests key removal semantics.
func StoreRemove(init InitStoreFn, t *testing.T) {
	t.Run("remove existing key", func(t *testing.T) {
		s, done := init(StoreFields{
			Pairs: map[string]string{"beta.opt_in": "yes", "display.theme": "dark"},
		}, t)
		defer done()

		ctx := context.Background()
		require.NoError(t, s.Remove(ctx, "beta.opt_in"))

		ok, err := s.ContainsKey(ctx, "beta.opt_in")
		require.NoError(t, err)
		assert.False(t, ok)

		// unrelated keys survive
		ok, err = s.ContainsKey(ctx, "display.theme")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("remove absent key is a no-op", func(t *testing.T) {
		s, done := init(StoreFields{}, t)
		defer done()

		require.NoError(t, s.Remove(context.Background(), "beta.opt_in"))
	})
}

// StoreContainsKey tests key presence checks.
func StoreContainsKey(init InitStoreFn, t *testing.T) {
	s, done := init(StoreFields{
		Pairs: map[string]string{"profile.display_name": "ada", "profile.bio": ""},
	}, t)
	defer done()

	ctx := context.Background()

	ok, err := s.ContainsKey(ctx, "profile.display_name")
	require.NoError(t, err)
	assert.True(t, ok)

	// a key holding the empty string is still present
	ok, err = s.ContainsKey(ctx, "profile.bio")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ContainsKey(ctx, "profile.avatar")
	require.NoError(t, err)
	assert.False(t, ok)
}

// StoreConcurrentAccess exercises the store from many goroutines at once.
// It asserts nothing beyond error-freedom and final visibility; the race
// detector does the rest.
func StoreConcurrentAccess(init InitStoreFn, t *testing.T) {
	s, done := init(StoreFields{}, t)
	defer done()

	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			key := fmt.Sprintf("worker.%d", i)
			for j := 0; j < 25; j++ {
				if err := s.SetInt(gctx, key, int64(j)); err != nil {
					return err
				}
				if _, err := s.GetInt(gctx, key); err != nil {
					return err
				}
				if _, err := s.ContainsKey(gctx, key); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < 8; i++ {
		got, err := s.GetInt(ctx, fmt.Sprintf("worker.%d", i))
		require.NoError(t, err)
		assert.Equal(t, int64(24), got)
	}
}
