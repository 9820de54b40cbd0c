package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/dbprocessing/internal/app"
	"github.com/yungbote/dbprocessing/internal/catalogconfig"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
)

var (
	resetComment string

	resetLockCmd = &cobra.Command{
		Use:   "reset-lock",
		Short: "Clear a processing lock left by a crashed run",
		Args:  cobra.NoArgs,
		RunE:  runResetLock,
	}
	createDBCmd = &cobra.Command{
		Use:   "create-db",
		Short: "Create the catalog tables",
		Args:  cobra.NoArgs,
		RunE:  runCreateDB,
	}
	migrateDBCmd = &cobra.Command{
		Use:   "migrate-db",
		Short: "Upgrade an existing catalog and backfill the unixtime table",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDB,
	}
	loadConfigCmd = &cobra.Command{
		Use:   "load-config <catalog.yaml>",
		Short: "Add the mission, products, processes and codes described by a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoadConfig,
	}
)

func init() {
	resetLockCmd.Flags().StringVar(&resetComment, "comment", "", "why the lock is being cleared (required)")
	_ = resetLockCmd.MarkFlagRequired("comment")
}

func dbcOf(ctx context.Context) dbctx.Context { return dbctx.Context{Ctx: ctx} }

func runResetLock(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		locks, err := a.Catalog.GetActiveLocks(dbcOf(ctx))
		if err != nil {
			return err
		}
		for _, l := range locks {
			fmt.Fprintf(cmd.OutOrStdout(), "clearing lock %d: pid %d on %s by %s since %s\n",
				l.LoggingID, l.PID, l.Hostname, l.User, l.ProcessingStartTime.Format("2006-01-02 15:04:05"))
		}
		n, err := a.Catalog.ResetProcessingFlag(dbcOf(ctx), resetComment)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d lock(s) cleared\n", n)
		return nil
	})
}

func runCreateDB(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(_ context.Context, a *app.App) error {
		if err := a.Store.CreateDB(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s catalog\n", a.Store.Dialect())
		return nil
	})
}

func runMigrateDB(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(_ context.Context, a *app.App) error {
		n, err := a.Store.MigrateDB()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated; %d unixtime rows backfilled\n", n)
		return nil
	})
}

func runLoadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := catalogconfig.Load(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := catalogconfig.Apply(ctx, a.Catalog, cfg, a.Log)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "created:", countsLine(res.Created))
		fmt.Fprintln(cmd.OutOrStdout(), "existing:", countsLine(res.Existing))
		return nil
	})
}

func countsLine(m map[string]int) string {
	order := []string{"mission", "satellite", "instrument", "product", "inspector", "process", "productprocesslink", "code"}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		if m[k] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
