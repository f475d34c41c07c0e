package migration_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/koniz-dev/grex-sub004/bolt"
	"github.com/koniz-dev/grex-sub004/inmem"
	"github.com/koniz-dev/grex-sub004/kit/errors"
	"github.com/koniz-dev/grex-sub004/kv"
	"github.com/koniz-dev/grex-sub004/kv/migration"
	"github.com/koniz-dev/grex-sub004/kvtest"
	"github.com/koniz-dev/grex-sub004/mock"
)

func newTestMigrator(t *testing.T, logger *zap.Logger, store kv.Store, registry *migration.Registry, opts ...migration.MigratorOption) *migration.Migrator {
	t.Helper()
	return migration.NewMigrator(logger, store, registry, opts...)
}

func Test_Inmem_Migrator(t *testing.T) {
	kvtest.Migrator(t, inmem.NewKVStore(), newTestMigrator)
}

func Test_Bolt_Migrator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grex.bolt")

	store := bolt.NewKVStore(path, bolt.WithNoSync())
	store.WithLogger(zaptest.NewLogger(t))
	require.NoError(t, store.Open(context.Background()))
	defer store.Close()

	kvtest.Migrator(t, store, newTestMigrator)
}

func TestMigrator_Up_ValidatesRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := inmem.NewKVStore()

	registry := migration.NewRegistry(noop(0, "a"), noop(2, "c"))
	m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

	_, err := m.Up(ctx)
	require.Error(t, err)
	assert.Equal(t, migration.ERegistryIntegrity, errors.ErrorCode(err))

	// nothing was applied or persisted
	_, err = store.GetInt(ctx, migration.DefaultVersionKey)
	assert.True(t, kv.IsNotFound(err))
}

func TestMigrator_Up_StoredVersionBeforeChainHead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := inmem.NewKVStore()
	require.NoError(t, store.SetInt(ctx, migration.DefaultVersionKey, 1))

	// a compacted catalog whose earliest step starts above the stored version
	registry := migration.NewRegistry(noop(3, "c"), noop(4, "d"))
	m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

	_, err := m.Up(ctx)
	require.Error(t, err)
	assert.Equal(t, migration.ERegistryIntegrity, errors.ErrorCode(err))
	assert.Contains(t, err.Error(), "begin at version 3 but the store is at version 1")
}

func TestMigrator_Up_StoredVersionBeyondTarget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := inmem.NewKVStore()
	require.NoError(t, store.SetInt(ctx, migration.DefaultVersionKey, 9))

	registry := migration.NewRegistry(noop(0, "a"), noop(1, "b"))
	m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

	// a store written by a newer release has nothing pending here
	summary, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, summary.StartVersion)
	assert.Equal(t, 9, summary.EndVersion)
	assert.Equal(t, 2, summary.TargetVersion)
	assert.Zero(t, summary.Applied)
}

func TestMigrator_Up_RecoversPanic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := inmem.NewKVStore()

	registry := migration.NewRegistry(
		noop(0, "a"),
		migration.Func(1, "explode", func(ctx context.Context, store kv.Store) error {
			panic("boom")
		}),
	)
	m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

	summary, err := m.Up(ctx)
	require.Error(t, err)
	assert.Equal(t, migration.EMigrationFailed, errors.ErrorCode(err))
	assert.Contains(t, err.Error(), "panic: boom")

	// the version persisted by the step before the panic survives
	assert.Equal(t, 1, summary.EndVersion)
	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMigrator_Up_Precondition(t *testing.T) {
	t.Parallel()

	t.Run("false holds the version back", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := inmem.NewKVStore()

		var ran bool
		registry := migration.NewRegistry(
			migration.FuncWithPrecondition(0, "guarded",
				func(ctx context.Context, store kv.Store) (bool, error) {
					return false, nil
				},
				func(ctx context.Context, store kv.Store) error {
					ran = true
					return nil
				},
			),
		)
		m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

		_, err := m.Up(ctx)
		require.Error(t, err)
		assert.Equal(t, migration.EPreconditionFailed, errors.ErrorCode(err))
		assert.False(t, ran, "body must not run when the precondition is not met")

		version, err := m.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, version)
	})

	t.Run("error fails the step", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := inmem.NewKVStore()

		registry := migration.NewRegistry(
			migration.FuncWithPrecondition(0, "guarded",
				func(ctx context.Context, store kv.Store) (bool, error) {
					return false, fmt.Errorf("cannot inspect store")
				},
				nil,
			),
		)
		m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

		_, err := m.Up(ctx)
		require.Error(t, err)
		assert.Equal(t, migration.EMigrationFailed, errors.ErrorCode(err))
		assert.Contains(t, err.Error(), "precondition check")
		assert.Contains(t, err.Error(), "cannot inspect store")
	})

	t.Run("true runs the body", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := inmem.NewKVStore()

		var ran bool
		registry := migration.NewRegistry(
			migration.FuncWithPrecondition(0, "guarded",
				func(ctx context.Context, store kv.Store) (bool, error) {
					return true, nil
				},
				func(ctx context.Context, store kv.Store) error {
					ran = true
					return nil
				},
			),
		)
		m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

		_, err := m.Up(ctx)
		require.NoError(t, err)
		assert.True(t, ran)

		version, err := m.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, version)
	})
}

func TestMigrator_Up_ReadVersionUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := mock.NewStore(inmem.NewKVStore())
	store.GetIntFn = func(ctx context.Context, key string) (int64, error) {
		return 0, fmt.Errorf("store is sealed")
	}

	m := migration.NewMigrator(zaptest.NewLogger(t), store, migration.NewRegistry(noop(0, "a")))

	_, err := m.Up(ctx)
	require.Error(t, err)
	assert.Equal(t, migration.EStorageUnavailable, errors.ErrorCode(err))
	assert.Contains(t, err.Error(), "store is sealed")
}

func TestMigrator_Up_PersistVersionUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := inmem.NewKVStore()

	// only writes to the version key fail; the body's own writes succeed
	store := mock.NewStore(inner)
	store.SetIntFn = func(ctx context.Context, key string, value int64) error {
		if key == migration.DefaultVersionKey {
			return fmt.Errorf("write timeout")
		}
		return inner.SetInt(ctx, key, value)
	}

	var ran int
	registry := migration.NewRegistry(
		migration.Func(0, "first", func(ctx context.Context, store kv.Store) error {
			ran++
			return nil
		}),
		noop(1, "second"),
	)
	m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

	summary, err := m.Up(ctx)
	require.Error(t, err)
	assert.Equal(t, migration.EStorageUnavailable, errors.ErrorCode(err))
	assert.Contains(t, err.Error(), "persisting version 1")

	// the step ran but never became durable, so nothing counts as applied
	assert.Equal(t, 1, ran)
	assert.Zero(t, summary.Applied)
	assert.Equal(t, 0, summary.EndVersion)
}

func TestMigrator_Up_FastPathWritesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := inmem.NewKVStore()
	require.NoError(t, inner.SetInt(ctx, migration.DefaultVersionKey, 2))

	var writes int
	store := mock.NewStore(inner)
	store.SetIntFn = func(ctx context.Context, key string, value int64) error {
		writes++
		return inner.SetInt(ctx, key, value)
	}
	store.SetStringFn = func(ctx context.Context, key, value string) error {
		writes++
		return inner.SetString(ctx, key, value)
	}

	registry := migration.NewRegistry(noop(0, "a"), noop(1, "b"))
	m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

	summary, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Applied)
	assert.Zero(t, writes, "an up-to-date store must not be written")
}

func TestMigrator_Up_SummaryTiming(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := inmem.NewKVStore()
	mck := clock.NewMock()

	registry := migration.NewRegistry(
		migration.Func(0, "slow", func(ctx context.Context, store kv.Store) error {
			mck.Add(15 * time.Millisecond)
			return nil
		}),
	)
	m := migration.NewMigrator(zaptest.NewLogger(t), store, registry, migration.WithClock(mck))

	summary, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Millisecond, summary.Took)
}

func TestMigrator_Up_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := inmem.NewKVStore()

	var applied int64
	count := func(ctx context.Context, store kv.Store) error {
		atomic.AddInt64(&applied, 1)
		return nil
	}

	registry := migration.NewRegistry(
		migration.Func(0, "a", count),
		migration.Func(1, "b", count),
		migration.Func(2, "c", count),
	)
	m := migration.NewMigrator(zaptest.NewLogger(t), store, registry)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, err := m.Up(ctx)
			return err
		})
	}
	require.NoError(t, g.Wait())

	// runs serialize; whoever loses the race finds nothing pending
	assert.Equal(t, int64(3), atomic.LoadInt64(&applied))

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestMigrator_Version(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := inmem.NewKVStore()
	m := migration.NewMigrator(zaptest.NewLogger(t), store, migration.NewRegistry(noop(0, "a")))

	// a never-migrated store is at version zero
	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
	assert.Equal(t, 1, m.TargetVersion())

	_, err = m.Up(ctx)
	require.NoError(t, err)

	version, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMigrator_WithVersionKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := inmem.NewKVStore()

	m := migration.NewMigrator(zaptest.NewLogger(t), store, migration.NewRegistry(noop(0, "a")),
		migration.WithVersionKey("meta.version"))

	_, err := m.Up(ctx)
	require.NoError(t, err)

	got, err := store.GetInt(ctx, "meta.version")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	_, err = store.GetInt(ctx, migration.DefaultVersionKey)
	assert.True(t, kv.IsNotFound(err), "default key must stay untouched")
}
