package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// newStatusCommand reports the stored and target version of every domain
// without applying anything.
func newStatusCommand(ctx context.Context, flags *migrateFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report stored and target schema versions per domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(flags)
			if err != nil {
				return err
			}
			defer log.Sync()

			svc, closeStores, err := newMigrationService(ctx, log, flags, prometheus.NewRegistry(),
				migration.DomainGeneral, migration.DomainSecure)
			if err != nil {
				return err
			}
			defer closeStores()

			for _, domain := range svc.Domains() {
				version, err := svc.Version(ctx, domain)
				if err != nil {
					return err
				}
				target, err := svc.TargetVersion(domain)
				if err != nil {
					return err
				}
				log.Info("Storage schema status",
					zap.String("domain", string(domain)),
					zap.Int("version", version),
					zap.Int("target_version", target),
					zap.Int("pending", target-version))
			}
			return nil
		},
	}
}
