package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/koniz-dev/grex-sub004/bolt"
	"github.com/koniz-dev/grex-sub004/kit/prom/promtest"
	"github.com/koniz-dev/grex-sub004/kv"
	"github.com/koniz-dev/grex-sub004/kvtest"
)

func newTestKVStore(t *testing.T, path string) *bolt.KVStore {
	t.Helper()

	s := bolt.NewKVStore(path, bolt.WithNoSync())
	s.WithLogger(zaptest.NewLogger(t))
	require.NoError(t, s.Open(context.Background()))
	return s
}

func initKVStore(f kvtest.StoreFields, t *testing.T) (kv.Store, func()) {
	path := filepath.Join(t.TempDir(), "grex.bolt")
	s := newTestKVStore(t, path)

	ctx := context.Background()
	for k, v := range f.Pairs {
		require.NoError(t, s.SetString(ctx, k, v))
	}

	return s, func() {
		require.NoError(t, s.Close())
	}
}

func TestKVStore(t *testing.T) {
	kvtest.Store(initKVStore, t)
}

func TestKVStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grex.bolt")
	ctx := context.Background()

	s := newTestKVStore(t, path)
	require.NoError(t, s.SetString(ctx, "profile.display_name", "ada"))
	require.NoError(t, s.SetInt(ctx, "schema_version", 3))
	require.NoError(t, s.Close())

	s = newTestKVStore(t, path)
	defer s.Close()

	got, err := s.GetString(ctx, "profile.display_name")
	require.NoError(t, err)
	require.Equal(t, "ada", got)

	n, err := s.GetInt(ctx, "schema_version")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestKVStore_Collect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grex.bolt")
	s := newTestKVStore(t, path)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SetString(ctx, "display.theme", "dark"))
	require.NoError(t, s.SetString(ctx, "display.font_scale", "1.2"))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(s))

	mfs := promtest.MustGather(t, reg)

	keys := promtest.MustFindMetric(t, mfs, "boltdb_keys_total", nil)
	require.Equal(t, float64(2), keys.GetGauge().GetValue())

	writes := promtest.MustFindMetric(t, mfs, "boltdb_writes_total", nil)
	require.NotZero(t, writes.GetCounter().GetValue())
}
