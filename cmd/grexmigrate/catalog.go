package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/koniz-dev/grex-sub004/kv/migration"
	"github.com/koniz-dev/grex-sub004/kv/migration/general"
	securemig "github.com/koniz-dev/grex-sub004/kv/migration/secure"
)

// catalog points the validator and the scaffolder at one domain's
// migration package. Directories are relative to the repository root;
// create is a development tool meant to run from a checkout.
type catalog struct {
	domain   migration.Domain
	dir      string
	pkg      string
	existing []migration.Spec
}

func catalogs() []catalog {
	return []catalog{
		{
			domain:   migration.DomainGeneral,
			dir:      "kv/migration/general",
			pkg:      "general",
			existing: general.Migrations[:],
		},
		{
			domain:   migration.DomainSecure,
			dir:      "kv/migration/secure",
			pkg:      "secure",
			existing: securemig.Migrations[:],
		},
	}
}

// newValidateCommand checks every catalog for ordering gaps and version
// collisions, so CI fails on a bad chain before it ships.
func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every migration catalog for gaps and collisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result error
			for _, cat := range catalogs() {
				registry := migration.NewRegistry(cat.existing...)
				if err := registry.Validate(); err != nil {
					result = multierr.Append(result, fmt.Errorf("domain %s: %w", cat.domain, err))
					continue
				}
				fmt.Printf("domain %s: %d migrations, target version %d\n",
					cat.domain, registry.Len(), registry.TargetVersion())
			}
			return result
		},
	}
}

// newCreateCommand scaffolds the next numbered migration in a domain
// catalog and splices it into the catalog's all.go.
func newCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <domain> <name>",
		Short: "Scaffold the next migration in a domain catalog",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args[1:], " ")
			for _, cat := range catalogs() {
				if string(cat.domain) == args[0] {
					return migration.CreateNewMigration(cat.dir, cat.pkg, cat.existing, name)
				}
			}
			return fmt.Errorf("unknown storage domain %q, expected %q or %q",
				args[0], migration.DomainGeneral, migration.DomainSecure)
		},
	}
}
