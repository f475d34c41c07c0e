// Command grexmigrate brings the grex storage schemas up to date. Run
// without a subcommand it migrates every domain, the same work the
// application performs at startup; subcommands narrow a run to one domain,
// report catalog state, or scaffold new migrations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/koniz-dev/grex-sub004/internal/fs"
	"github.com/koniz-dev/grex-sub004/kit/cli"
	"github.com/koniz-dev/grex-sub004/kv/migration"
	"github.com/koniz-dev/grex-sub004/vault"
)

func main() {
	ctx := context.Background()

	cmd, err := newGrexmigrateCommand(ctx, viper.New())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// migrateFlags carries the persistent root options. Subcommands read the
// populated struct instead of binding copies of the same flags.
type migrateFlags struct {
	logLevel  zapcore.Level
	logFormat string

	store      string
	boltPath   string
	sqlitePath string

	secureStore string
	securePath  string
	vaultPath   string
}

func newGrexmigrateCommand(ctx context.Context, v *viper.Viper) (*cobra.Command, error) {
	boltPath, err := fs.DefaultStorePath()
	if err != nil {
		return nil, fmt.Errorf("error fetching default bolt path: %w", err)
	}
	sqlitePath, err := fs.DefaultSqliteStorePath()
	if err != nil {
		return nil, fmt.Errorf("error fetching default sqlite path: %w", err)
	}
	securePath, err := fs.DefaultSecureStorePath()
	if err != nil {
		return nil, fmt.Errorf("error fetching default secure store path: %w", err)
	}

	flags := &migrateFlags{}

	prog := &cli.Program{
		Name: "grexmigrate",
		Run: func() error {
			return runMigrations(ctx, flags, "")
		},
		Opts: []cli.Opt{
			{
				DestP:      &flags.logLevel,
				Flag:       "log-level",
				Default:    zapcore.InfoLevel,
				Desc:       "supported log levels are debug, info, warn and error",
				Persistent: true,
			},
			{
				DestP:      &flags.logFormat,
				Flag:       "log-format",
				Default:    "auto",
				Desc:       "log output format: auto, logfmt or json",
				Persistent: true,
			},
			{
				DestP:      &flags.store,
				Flag:       "store",
				Default:    "bolt",
				Desc:       "backing store for the general domain (bolt, sqlite or memory)",
				Persistent: true,
			},
			{
				DestP:      &flags.boltPath,
				Flag:       "bolt-path",
				Default:    boltPath,
				Desc:       "path to the boltdb file backing the general domain",
				Persistent: true,
			},
			{
				DestP:      &flags.sqlitePath,
				Flag:       "sqlite-path",
				Default:    sqlitePath,
				Desc:       "path to the sqlite file backing the general domain",
				Persistent: true,
			},
			{
				DestP:      &flags.secureStore,
				Flag:       "secure-store",
				Default:    "sealed",
				Desc:       "backing store for the secure domain (sealed, vault or memory)",
				Persistent: true,
			},
			{
				DestP:      &flags.securePath,
				Flag:       "secure-path",
				Default:    securePath,
				Desc:       "path to the boltdb file backing the sealed secure domain",
				Persistent: true,
			},
			{
				DestP:      &flags.vaultPath,
				Flag:       "vault-path",
				Default:    vault.DefaultPath,
				Desc:       "vault KV v2 mount path holding the secure domain",
				Persistent: true,
			},
		},
	}

	cmd, err := cli.NewCommand(v, prog)
	if err != nil {
		return nil, err
	}
	cmd.Short = "Bring the grex storage schemas up to date"

	upCmd, err := newUpCommand(ctx, v, flags)
	if err != nil {
		return nil, err
	}
	cmd.AddCommand(upCmd)
	cmd.AddCommand(newStatusCommand(ctx, flags))
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newCreateCommand())

	return cmd, nil
}

// newUpCommand is the explicit form of the root run, plus a --domain
// filter for targeted invocations.
func newUpCommand(ctx context.Context, v *viper.Viper, flags *migrateFlags) (*cobra.Command, error) {
	var domain string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(ctx, flags, migration.Domain(domain))
		},
	}

	opts := []cli.Opt{
		{
			DestP:   &domain,
			Flag:    "domain",
			Default: "",
			Desc:    "limit the run to one storage domain (general or secure)",
		},
	}
	if err := cli.BindOptions(v, cmd, opts); err != nil {
		return nil, err
	}

	return cmd, nil
}
