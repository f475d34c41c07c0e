package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/koniz-dev/grex-sub004/kit/errors"
	"github.com/koniz-dev/grex-sub004/kv"
	"github.com/koniz-dev/grex-sub004/logger"
)

// DefaultVersionKey is the well-known key holding a store's schema
// version. It is reserved: migration bodies cannot read or write it.
const DefaultVersionKey = "schema_version"

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithVersionKey overrides the key the stored version is persisted under.
func WithVersionKey(key string) MigratorOption {
	return func(m *Migrator) {
		m.versionKey = key
	}
}

// WithClock sets the clock used to time runs. Tests substitute a mock.
func WithClock(c clock.Clock) MigratorOption {
	return func(m *Migrator) {
		m.clock = c
	}
}

// Summary describes what a single Up run did. It is populated on failure
// too, in which case EndVersion is the last version made durable before
// the chain stopped.
type Summary struct {
	// StartVersion is the stored version read at the beginning of the run.
	StartVersion int
	// EndVersion is the last version durably persisted by the run.
	EndVersion int
	// TargetVersion is the catalog's highest ToVersion.
	TargetVersion int
	// Applied is the number of migrations applied and persisted.
	Applied int
	// Took is the wall clock duration of the run.
	Took time.Duration
}

// Migrator applies one registry's pending migrations against one store,
// persisting the stored version immediately after every successful step.
type Migrator struct {
	log        *zap.Logger
	store      kv.Store
	registry   *Registry
	versionKey string
	clock      clock.Clock

	// mu serializes runs: two concurrent Up calls racing on the same
	// stored version could double-apply or skip a step.
	mu sync.Mutex
}

// NewMigrator constructs and configures a new Migrator.
func NewMigrator(log *zap.Logger, store kv.Store, registry *Registry, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		log:        log,
		store:      store,
		registry:   registry,
		versionKey: DefaultVersionKey,
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up brings the store to the registry's target version, applying each
// pending migration in ascending order. The stored version advances
// immediately after each successful step, never before, so a crash
// mid-chain leaves the store at the last completed version and the next
// run resumes there. The first failure stops the chain.
//
// A store already at the target version is the common case on startup and
// returns without writing anything.
//
// Concurrent calls serialize; the later caller finds no pending work and
// returns through the fast path.
func (m *Migrator) Up(ctx context.Context) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.clock.Now()
	summary := Summary{TargetVersion: m.registry.TargetVersion()}

	if err := m.registry.Validate(); err != nil {
		return summary, err
	}

	version, err := m.readVersion(ctx)
	if err != nil {
		return summary, err
	}
	summary.StartVersion = version
	summary.EndVersion = version

	pending := m.registry.From(version)
	if len(pending) == 0 {
		m.log.Debug("Storage schema is up to date", zap.Int("version", version))
		summary.Took = m.clock.Now().Sub(start)
		return summary, nil
	}

	if head := pending[0].FromVersion(); head != version {
		return summary, &errors.Error{
			Code: ERegistryIntegrity,
			Msg:  fmt.Sprintf("pending migrations begin at version %d but the store is at version %d", head, version),
		}
	}

	m.log.Info("Bringing up storage schema",
		zap.Int("from_version", version),
		zap.Int("target_version", summary.TargetVersion),
		zap.Int("migration_count", len(pending)),
	)

	for _, spec := range pending {
		m.logMigrationEvent(spec, "started")

		if err := m.apply(ctx, spec); err != nil {
			summary.Took = m.clock.Now().Sub(start)
			return summary, err
		}

		toVersion := spec.FromVersion() + 1
		if err := m.store.SetInt(ctx, m.versionKey, int64(toVersion)); err != nil {
			summary.Took = m.clock.Now().Sub(start)
			return summary, &errors.Error{
				Code: EStorageUnavailable,
				Msg:  fmt.Sprintf("persisting version %d after %s", toVersion, describe(spec)),
				Err:  err,
			}
		}
		summary.EndVersion = toVersion
		summary.Applied++

		m.logMigrationEvent(spec, "completed")
	}

	summary.Took = m.clock.Now().Sub(start)
	return summary, nil
}

// Version reports the stored schema version, zero for a store that has
// never been migrated.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	return m.readVersion(ctx)
}

// TargetVersion reports the version Up migrates the store to.
func (m *Migrator) TargetVersion() int {
	return m.registry.TargetVersion()
}

func (m *Migrator) readVersion(ctx context.Context) (int, error) {
	version, err := m.store.GetInt(ctx, m.versionKey)
	if kv.IsNotFound(err) {
		// A store that predates the engine reports version zero.
		return 0, nil
	}
	if err != nil {
		return 0, &errors.Error{
			Code: EStorageUnavailable,
			Msg:  fmt.Sprintf("reading stored version at %q", m.versionKey),
			Err:  err,
		}
	}
	return int(version), nil
}

// apply runs one step, converting every failure mode, returned error,
// precondition refusal, or panic, into a typed error naming the step.
// Nothing escapes this boundary.
func (m *Migrator) apply(ctx context.Context, spec Spec) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errors.Error{
				Code: EMigrationFailed,
				Msg:  fmt.Sprintf("%s: panic: %v", describe(spec), r),
			}
		}
	}()

	// The body sees a store view that refuses access to the version key;
	// advancing progress is the Migrator's job alone.
	store := &guardedStore{inner: m.store, versionKey: m.versionKey}

	// Bodies that want to log reach the run logger through the context.
	ctx = logger.NewContextWithLogger(ctx, m.log.With(zap.String("migration_name", spec.Description())))

	if pre, ok := spec.(PreconditionSpec); ok {
		can, err := pre.CanMigrate(ctx, store)
		if err != nil {
			return &errors.Error{
				Code: EMigrationFailed,
				Msg:  fmt.Sprintf("%s: precondition check", describe(spec)),
				Err:  err,
			}
		}
		if !can {
			return &errors.Error{
				Code: EPreconditionFailed,
				Msg:  fmt.Sprintf("%s: precondition not met", describe(spec)),
			}
		}
	}

	if err := spec.Migrate(ctx, store); err != nil {
		return &errors.Error{
			Code: EMigrationFailed,
			Msg:  describe(spec),
			Err:  err,
		}
	}
	return nil
}

func (m *Migrator) logMigrationEvent(spec Spec, event string) {
	m.log.Debug("Executing storage migration",
		zap.String("migration_name", spec.Description()),
		zap.Int("from_version", spec.FromVersion()),
		zap.Int("to_version", spec.FromVersion()+1),
		zap.String("migration_event", event),
	)
}

// guardedStore hides the stored-version key from migration bodies.
type guardedStore struct {
	inner      kv.Store
	versionKey string
}

var _ kv.Store = (*guardedStore)(nil)

func (g *guardedStore) guard(key string) error {
	if key == g.versionKey {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  fmt.Sprintf("key %q is managed by the migration engine", key),
			Err:  kv.ErrKeyReserved,
		}
	}
	return nil
}

// GetString retrieves the value at the provided key.
func (g *guardedStore) GetString(ctx context.Context, key string) (string, error) {
	if err := g.guard(key); err != nil {
		return "", err
	}
	return g.inner.GetString(ctx, key)
}

// SetString sets the key value pair provided.
func (g *guardedStore) SetString(ctx context.Context, key, value string) error {
	if err := g.guard(key); err != nil {
		return err
	}
	return g.inner.SetString(ctx, key, value)
}

// GetInt retrieves the integer value at the provided key.
func (g *guardedStore) GetInt(ctx context.Context, key string) (int64, error) {
	if err := g.guard(key); err != nil {
		return 0, err
	}
	return g.inner.GetInt(ctx, key)
}

// SetInt sets the key to the provided integer value.
func (g *guardedStore) SetInt(ctx context.Context, key string, value int64) error {
	if err := g.guard(key); err != nil {
		return err
	}
	return g.inner.SetInt(ctx, key, value)
}

// Remove removes the key provided.
func (g *guardedStore) Remove(ctx context.Context, key string) error {
	if err := g.guard(key); err != nil {
		return err
	}
	return g.inner.Remove(ctx, key)
}

// ContainsKey reports whether the key holds a value.
func (g *guardedStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	if err := g.guard(key); err != nil {
		return false, err
	}
	return g.inner.ContainsKey(ctx, key)
}
