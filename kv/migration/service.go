package migration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/koniz-dev/grex-sub004/kit/errors"
	"github.com/koniz-dev/grex-sub004/kv"
)

// Domain names one isolated storage context. Each domain owns its own
// store, catalog, and stored version; domains share nothing.
type Domain string

const (
	// DomainGeneral is the general purpose preference store.
	DomainGeneral Domain = "general"
	// DomainSecure is the hardened store for sensitive material.
	DomainSecure Domain = "secure"
)

// DomainConfig binds a domain name to its store and migration catalog.
type DomainConfig struct {
	Domain   Domain
	Store    kv.Store
	Registry *Registry
	// Options are passed through to the domain's Migrator.
	Options []MigratorOption
}

// Service coordinates migration runs across every configured storage
// domain. It is the single entry point the application calls at startup,
// before anything else reads persisted state.
type Service struct {
	log       *zap.Logger
	order     []Domain
	migrators map[Domain]*Migrator
}

// NewService builds a Service from one configuration per domain. Domains
// run in the order given to this constructor.
func NewService(log *zap.Logger, domains ...DomainConfig) (*Service, error) {
	s := &Service{
		log:       log,
		migrators: make(map[Domain]*Migrator, len(domains)),
	}
	for _, cfg := range domains {
		if cfg.Domain == "" || cfg.Store == nil || cfg.Registry == nil {
			return nil, &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("domain %q: a name, store, and registry are all required", cfg.Domain),
			}
		}
		if _, ok := s.migrators[cfg.Domain]; ok {
			return nil, &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("domain %q configured twice", cfg.Domain),
			}
		}

		s.order = append(s.order, cfg.Domain)
		s.migrators[cfg.Domain] = NewMigrator(
			log.With(zap.String("domain", string(cfg.Domain))),
			cfg.Store,
			cfg.Registry,
			cfg.Options...,
		)
	}
	return s, nil
}

// MigrateAll brings every domain to its target version, in registration
// order. Domains are independent: when one fails the others still run,
// and nothing is rolled back. The aggregate error keeps each domain's
// failure distinct; unwrap with multierr.Errors, or match a particular
// failure with errors.Is / errors.As.
func (s *Service) MigrateAll(ctx context.Context) error {
	log := s.log.With(zap.String("migration_run", uuid.NewString()))

	var result error
	for _, domain := range s.order {
		if _, err := s.migrate(ctx, log, domain); err != nil {
			result = multierr.Append(result, fmt.Errorf("domain %s: %w", domain, err))
		}
	}
	return result
}

// MigrateDomain runs a single domain's chain, for targeted invocation by
// tooling and tests. Concurrent invocations for the same domain serialize
// on the domain's Migrator; the later one no-ops through the fast path.
func (s *Service) MigrateDomain(ctx context.Context, domain Domain) (Summary, error) {
	return s.migrate(ctx, s.log.With(zap.String("migration_run", uuid.NewString())), domain)
}

func (s *Service) migrate(ctx context.Context, log *zap.Logger, domain Domain) (Summary, error) {
	m, err := s.migrator(domain)
	if err != nil {
		return Summary{}, err
	}

	summary, err := m.Up(ctx)
	fields := []zap.Field{
		zap.String("domain", string(domain)),
		zap.Int("start_version", summary.StartVersion),
		zap.Int("end_version", summary.EndVersion),
		zap.Int("target_version", summary.TargetVersion),
		zap.Int("migrations_applied", summary.Applied),
		zap.Duration("took", summary.Took),
	}
	if err != nil {
		log.Error("Storage migration failed", append(fields, zap.Error(err))...)
		return summary, err
	}

	log.Info("Storage migration complete", fields...)
	return summary, nil
}

// Version reports the stored schema version of one domain.
func (s *Service) Version(ctx context.Context, domain Domain) (int, error) {
	m, err := s.migrator(domain)
	if err != nil {
		return 0, err
	}
	return m.Version(ctx)
}

// TargetVersion reports the version a domain's catalog migrates to.
func (s *Service) TargetVersion(domain Domain) (int, error) {
	m, err := s.migrator(domain)
	if err != nil {
		return 0, err
	}
	return m.TargetVersion(), nil
}

// Domains lists the configured domains in registration order.
func (s *Service) Domains() []Domain {
	domains := make([]Domain, len(s.order))
	copy(domains, s.order)
	return domains
}

func (s *Service) migrator(domain Domain) (*Migrator, error) {
	m, ok := s.migrators[domain]
	if !ok {
		return nil, &errors.Error{
			Code: errors.ENotFound,
			Msg:  fmt.Sprintf("unknown storage domain %q", domain),
		}
	}
	return m, nil
}
