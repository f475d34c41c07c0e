// Package migration evolves the schema of the client's key value stores
// across releases.
//
// A store carries an integer schema version under a well-known key. Each
// release ships an ordered catalog of migrations per storage domain; at
// startup a Migrator applies the pending tail of that catalog, persisting
// the new version after every successful step. An interrupted run resumes
// from the last durable version, so every migration must tolerate being
// re-applied to state it already produced.
//
// Migrations are plain values implementing Spec, constructed explicitly
// (usually through the helpers in this package) and listed in their
// domain's catalog package. The Service coordinates one Migrator per
// storage domain.
package migration

import (
	"context"
	"fmt"

	"github.com/koniz-dev/grex-sub004/kv"
)

// Spec is a single versioned transformation step. Implementations must be
// idempotent: re-running against a store that already reflects the
// migration's effect must change nothing and raise no error.
//
// A Spec must not read or write the stored-version key; the Migrator owns
// that key and hides it from the store handed to Migrate.
type Spec interface {
	// FromVersion is the version the store must be at before this step
	// runs. The step brings the store to FromVersion+1.
	FromVersion() int
	// Description is a short human readable summary, used in logs and
	// error messages only.
	Description() string
	// Migrate performs the transformation.
	Migrate(ctx context.Context, store kv.Store) error
}

// PreconditionSpec is a Spec with a CanMigrate hook. When the hook reports
// false the step fails and the chain stops with the stored version held
// back; skipping forward could leave later migrations running against a
// store this one does not understand.
type PreconditionSpec interface {
	Spec
	CanMigrate(ctx context.Context, store kv.Store) (bool, error)
}

// MigrateFunc is the body of a migration step.
type MigrateFunc func(ctx context.Context, store kv.Store) error

// CanMigrateFunc is the optional precondition of a migration step.
type CanMigrateFunc func(ctx context.Context, store kv.Store) (bool, error)

type funcSpec struct {
	from int
	desc string
	fn   MigrateFunc
}

func (s *funcSpec) FromVersion() int { return s.from }

func (s *funcSpec) Description() string { return s.desc }

func (s *funcSpec) Migrate(ctx context.Context, store kv.Store) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, store)
}

// Func builds a Spec from a bare function. A nil fn is a no-op step, which
// is what freshly scaffolded migrations start as.
func Func(fromVersion int, description string, fn MigrateFunc) Spec {
	return &funcSpec{from: fromVersion, desc: description, fn: fn}
}

type preconditionSpec struct {
	funcSpec
	can CanMigrateFunc
}

func (s *preconditionSpec) CanMigrate(ctx context.Context, store kv.Store) (bool, error) {
	return s.can(ctx, store)
}

// FuncWithPrecondition builds a Spec whose body only runs when can reports
// true.
func FuncWithPrecondition(fromVersion int, description string, can CanMigrateFunc, fn MigrateFunc) Spec {
	return &preconditionSpec{
		funcSpec: funcSpec{from: fromVersion, desc: description, fn: fn},
		can:      can,
	}
}

// RenameKey moves the value at oldKey to newKey. Re-running after a crash
// is safe: once oldKey is gone the step is a no-op, and a value already
// present at newKey is never overwritten.
func RenameKey(fromVersion int, oldKey, newKey string) Spec {
	description := fmt.Sprintf("rename %s to %s", oldKey, newKey)
	return Func(fromVersion, description, func(ctx context.Context, store kv.Store) error {
		value, err := store.GetString(ctx, oldKey)
		if kv.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}

		exists, err := store.ContainsKey(ctx, newKey)
		if err != nil {
			return err
		}
		if !exists {
			if err := store.SetString(ctx, newKey, value); err != nil {
				return err
			}
		}
		return store.Remove(ctx, oldKey)
	})
}

// RemoveKeys deletes the named keys. Removing an absent key is a no-op,
// so the step is trivially idempotent.
func RemoveKeys(fromVersion int, description string, keys ...string) Spec {
	return Func(fromVersion, description, func(ctx context.Context, store kv.Store) error {
		for _, key := range keys {
			if err := store.Remove(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// TransformString rewrites the value at key through fn. An absent key is
// left absent. fn must be stable on its own output for the step to stay
// idempotent.
func TransformString(fromVersion int, description, key string, fn func(string) (string, error)) Spec {
	return Func(fromVersion, description, func(ctx context.Context, store kv.Store) error {
		value, err := store.GetString(ctx, key)
		if kv.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}

		transformed, err := fn(value)
		if err != nil {
			return fmt.Errorf("transform %q: %w", key, err)
		}
		if transformed == value {
			return nil
		}
		return store.SetString(ctx, key, transformed)
	})
}

// describe renders a step for logs and error messages,
// e.g. "migration 2 -> 3 (split display prefs)".
func describe(s Spec) string {
	return fmt.Sprintf("migration %d -> %d (%s)", s.FromVersion(), s.FromVersion()+1, s.Description())
}
