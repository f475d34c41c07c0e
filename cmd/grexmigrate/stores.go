package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/koniz-dev/grex-sub004/bolt"
	"github.com/koniz-dev/grex-sub004/inmem"
	"github.com/koniz-dev/grex-sub004/kv"
	"github.com/koniz-dev/grex-sub004/kv/migration"
	"github.com/koniz-dev/grex-sub004/kv/migration/general"
	securemig "github.com/koniz-dev/grex-sub004/kv/migration/secure"
	"github.com/koniz-dev/grex-sub004/logger"
	"github.com/koniz-dev/grex-sub004/secure"
	"github.com/koniz-dev/grex-sub004/sqlite"
	"github.com/koniz-dev/grex-sub004/vault"
)

// The sealed store passphrase comes from the environment only, never from
// a flag; command lines are visible in process listings.
const securePassphraseEnv = "GREXMIGRATE_SECURE_PASSPHRASE"

func newLogger(flags *migrateFlags) (*zap.Logger, error) {
	logconf := &logger.Config{
		Format: flags.logFormat,
		Level:  flags.logLevel,
	}
	return logconf.New(os.Stdout)
}

// runMigrations opens the configured stores and brings one domain, or all
// of them, to its catalog's target version.
func runMigrations(ctx context.Context, flags *migrateFlags, domain migration.Domain) error {
	log, err := newLogger(flags)
	if err != nil {
		return err
	}
	defer log.Sync()

	domains := []migration.Domain{migration.DomainGeneral, migration.DomainSecure}
	if domain != "" {
		domains = []migration.Domain{domain}
	}

	reg := prometheus.NewRegistry()

	svc, closeStores, err := newMigrationService(ctx, log, flags, reg, domains...)
	if err != nil {
		return err
	}
	defer closeStores()

	if domain != "" {
		_, err = svc.MigrateDomain(ctx, domain)
	} else {
		err = svc.MigrateAll(ctx)
	}
	if err != nil {
		return err
	}

	logStoreMetrics(log, reg)
	return nil
}

// newMigrationService opens a store per requested domain and binds each to
// its catalog. The returned closer shuts every opened store down in
// reverse order.
func newMigrationService(ctx context.Context, log *zap.Logger, flags *migrateFlags, reg *prometheus.Registry, domains ...migration.Domain) (*migration.Service, func(), error) {
	var (
		configs []migration.DomainConfig
		closers []func() error
	)
	closeStores := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Info("Failed to close store", zap.Error(err))
			}
		}
	}

	for _, domain := range domains {
		var (
			store  kv.Store
			closer func() error
			err    error
		)

		switch domain {
		case migration.DomainGeneral:
			store, closer, err = openGeneralStore(ctx, log, flags, reg)
			if err == nil {
				configs = append(configs, migration.DomainConfig{
					Domain:   migration.DomainGeneral,
					Store:    store,
					Registry: general.Registry(),
				})
			}
		case migration.DomainSecure:
			store, closer, err = openSecureStore(ctx, log, flags)
			if err == nil {
				configs = append(configs, migration.DomainConfig{
					Domain:   migration.DomainSecure,
					Store:    store,
					Registry: securemig.Registry(),
				})
			}
		default:
			err = fmt.Errorf("unknown storage domain %q, expected %q or %q",
				domain, migration.DomainGeneral, migration.DomainSecure)
		}

		if err != nil {
			closeStores()
			return nil, nil, err
		}
		if closer != nil {
			closers = append(closers, closer)
		}
	}

	svc, err := migration.NewService(log, configs...)
	if err != nil {
		closeStores()
		return nil, nil, err
	}
	return svc, closeStores, nil
}

// openGeneralStore opens the preference store selected by --store. Only
// this store registers on the metrics registry: the bolt collector's
// descriptors are package scoped, so a second bolt store cannot join the
// same registry.
func openGeneralStore(ctx context.Context, log *zap.Logger, flags *migrateFlags, reg *prometheus.Registry) (kv.Store, func() error, error) {
	switch flags.store {
	case "bolt":
		store := bolt.NewKVStore(flags.boltPath)
		store.WithLogger(log.With(zap.String("service", "bolt")))
		if err := store.Open(ctx); err != nil {
			return nil, nil, err
		}
		reg.MustRegister(store)
		return store, store.Close, nil
	case "sqlite":
		store, err := sqlite.NewKVStore(flags.sqlitePath, log.With(zap.String("service", "sqlite")))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "memory":
		return inmem.NewKVStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q, expected \"bolt\", \"sqlite\" or \"memory\"", flags.store)
	}
}

// openSecureStore opens the credential store selected by --secure-store.
func openSecureStore(ctx context.Context, log *zap.Logger, flags *migrateFlags) (kv.Store, func() error, error) {
	switch flags.secureStore {
	case "sealed":
		passphrase := os.Getenv(securePassphraseEnv)
		if passphrase == "" {
			return nil, nil, fmt.Errorf("opening the sealed store requires a passphrase in %s", securePassphraseEnv)
		}

		inner := bolt.NewKVStore(flags.securePath)
		inner.WithLogger(log.With(zap.String("service", "bolt-secure")))
		if err := inner.Open(ctx); err != nil {
			return nil, nil, err
		}

		store, err := secure.Open(ctx, inner, passphrase, secure.WithLogger(log.With(zap.String("service", "secure"))))
		if err != nil {
			inner.Close()
			return nil, nil, err
		}
		return store, inner.Close, nil
	case "vault":
		// The vault client is configured through the standard VAULT_*
		// environment variables.
		// https://www.vaultproject.io/docs/commands/index.html#environment-variables
		store, err := vault.NewKVStore(flags.vaultPath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "memory":
		return inmem.NewKVStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown secure store type %q, expected \"sealed\", \"vault\" or \"memory\"", flags.secureStore)
	}
}

// logStoreMetrics drains the registry into the debug log. The command is
// short lived and serves no scrape endpoint.
func logStoreMetrics(log *zap.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Debug("Failed to gather store metrics", zap.Error(err))
		return
	}
	for _, family := range families {
		log.Debug("Store metric",
			zap.String("name", family.GetName()),
			zap.Int("series", len(family.GetMetric())))
	}
}
