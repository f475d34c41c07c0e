package kvtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/koniz-dev/grex-sub004/kit/errors"
	"github.com/koniz-dev/grex-sub004/kv"
	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// NewMigratorFn constructs the migrator under test for the provided store
// and registry. Backend packages supply their own constructor so the
// scenarios below run unchanged against every store implementation.
type NewMigratorFn func(t *testing.T, logger *zap.Logger, store kv.Store, registry *migration.Registry, opts ...migration.MigratorOption) *migration.Migrator

// Migrator runs the migration engine scenarios against store. Scenarios
// share the store but isolate themselves behind distinct version keys and
// key prefixes, much like two storage domains sharing a backend.
func Migrator(t *testing.T, store kv.Store, newMigrator NewMigratorFn) {
	ctx := context.Background()

	t.Run("applies a full chain in order", func(t *testing.T) {
		var order []string
		record := func(name string) migration.MigrateFunc {
			return func(ctx context.Context, store kv.Store) error {
				order = append(order, name)
				return store.SetString(ctx, "orderly."+name, "done")
			}
		}

		registry := migration.NewRegistry(
			migration.Func(0, "first", record("first")),
			migration.Func(1, "second", record("second")),
			migration.Func(2, "third", record("third")),
		)

		m := newMigrator(t, zaptest.NewLogger(t), store, registry,
			migration.WithVersionKey("orderly.version"))

		summary, err := m.Up(ctx)
		require.NoError(t, err)

		assert.Equal(t, []string{"first", "second", "third"}, order)
		assert.Equal(t, 0, summary.StartVersion)
		assert.Equal(t, 3, summary.EndVersion)
		assert.Equal(t, 3, summary.TargetVersion)
		assert.Equal(t, 3, summary.Applied)

		version, err := m.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, version)

		for _, name := range order {
			ok, err := store.ContainsKey(ctx, "orderly."+name)
			require.NoError(t, err)
			assert.True(t, ok, "missing key written by %q", name)
		}

		// a second run finds nothing pending
		summary, err = m.Up(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.Applied)
		assert.Equal(t, []string{"first", "second", "third"}, order)
	})

	t.Run("resumes from the stored version", func(t *testing.T) {
		require.NoError(t, store.SetInt(ctx, "resume.version", 2))

		var order []string
		record := func(name string) migration.MigrateFunc {
			return func(ctx context.Context, store kv.Store) error {
				order = append(order, name)
				return nil
			}
		}

		registry := migration.NewRegistry(
			migration.Func(0, "first", record("first")),
			migration.Func(1, "second", record("second")),
			migration.Func(2, "third", record("third")),
			migration.Func(3, "fourth", record("fourth")),
		)

		m := newMigrator(t, zaptest.NewLogger(t), store, registry,
			migration.WithVersionKey("resume.version"))

		summary, err := m.Up(ctx)
		require.NoError(t, err)

		assert.Equal(t, []string{"third", "fourth"}, order)
		assert.Equal(t, 2, summary.StartVersion)
		assert.Equal(t, 4, summary.EndVersion)
		assert.Equal(t, 2, summary.Applied)
	})

	t.Run("failure stops the chain at the last durable version", func(t *testing.T) {
		var order []string
		record := func(name string) migration.MigrateFunc {
			return func(ctx context.Context, store kv.Store) error {
				order = append(order, name)
				return nil
			}
		}

		registry := migration.NewRegistry(
			migration.Func(0, "first", record("first")),
			migration.Func(1, "second", func(ctx context.Context, store kv.Store) error {
				return fmt.Errorf("links table is gone")
			}),
			migration.Func(2, "third", record("third")),
		)

		m := newMigrator(t, zaptest.NewLogger(t), store, registry,
			migration.WithVersionKey("failstop.version"))

		summary, err := m.Up(ctx)
		require.Error(t, err)
		assert.Equal(t, migration.EMigrationFailed, errors.ErrorCode(err))
		assert.Contains(t, err.Error(), "links table is gone")

		// only the step before the failure was applied and made durable
		assert.Equal(t, []string{"first"}, order)
		assert.Equal(t, 1, summary.EndVersion)
		assert.Equal(t, 1, summary.Applied)

		version, err := m.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, version)

		// repair the failing step and run again: the chain resumes at the
		// stored version and applies only the tail
		repaired := migration.NewRegistry(
			migration.Func(0, "first", record("first")),
			migration.Func(1, "second", record("second")),
			migration.Func(2, "third", record("third")),
		)
		m = newMigrator(t, zaptest.NewLogger(t), store, repaired,
			migration.WithVersionKey("failstop.version"))

		summary, err = m.Up(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "third"}, order)
		assert.Equal(t, 1, summary.StartVersion)
		assert.Equal(t, 3, summary.EndVersion)
		assert.Equal(t, 2, summary.Applied)
	})

	t.Run("bodies cannot touch the version key", func(t *testing.T) {
		registry := migration.NewRegistry(
			migration.Func(0, "sneaky", func(ctx context.Context, store kv.Store) error {
				return store.SetInt(ctx, "guarded.version", 99)
			}),
		)

		m := newMigrator(t, zaptest.NewLogger(t), store, registry,
			migration.WithVersionKey("guarded.version"))

		_, err := m.Up(ctx)
		require.Error(t, err)
		assert.Equal(t, migration.EMigrationFailed, errors.ErrorCode(err))
		assert.ErrorIs(t, err, kv.ErrKeyReserved)

		version, err := m.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, version)
	})
}
