package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/koniz-dev/grex-sub004/inmem"
	"github.com/koniz-dev/grex-sub004/kv"
	"github.com/koniz-dev/grex-sub004/kvtest"
)

func initKVStore(f kvtest.StoreFields, t *testing.T) (kv.Store, func()) {
	s := inmem.NewKVStore()

	ctx := context.Background()
	for k, v := range f.Pairs {
		require.NoError(t, s.SetString(ctx, k, v))
	}

	return s, func() {}
}

func TestKVStore(t *testing.T) {
	kvtest.Store(initKVStore, t)
}

func TestKVStore_Flush(t *testing.T) {
	s := inmem.NewKVStore()
	ctx := context.Background()

	require.NoError(t, s.SetString(ctx, "display.theme", "dark"))
	require.NoError(t, s.SetString(ctx, "display.font_scale", "1.2"))
	require.Equal(t, 2, s.Len())

	s.Flush(ctx)
	require.Equal(t, 0, s.Len())

	ok, err := s.ContainsKey(ctx, "display.theme")
	require.NoError(t, err)
	require.False(t, ok)
}
