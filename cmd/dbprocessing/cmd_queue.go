package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yungbote/dbprocessing/internal/app"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/pointers"
)

var (
	pushBump string

	queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit the process queue",
	}
	queueListCmd = &cobra.Command{
		Use:   "list",
		Short: "List queued files in queue order",
		Args:  cobra.NoArgs,
		RunE:  runQueueList,
	}
	queuePushCmd = &cobra.Command{
		Use:   "push <file>...",
		Short: "Queue files by id or filename",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQueuePush,
	}
	queueFlushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Empty the queue",
		Args:  cobra.NoArgs,
		RunE:  runQueueFlush,
	}
	queueCleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Drop superseded entries and sort the queue by data level",
		Args:  cobra.NoArgs,
		RunE:  runQueueClean,
	}
)

func init() {
	queuePushCmd.Flags().StringVar(&pushBump, "bump", "", "force a version bump on the next build: quality or interface")
	queueCmd.AddCommand(queueListCmd, queuePushCmd, queueFlushCmd, queueCleanCmd)
}

// parseBump maps a --bump value to the queue's version_bump column.
func parseBump(s string) (*int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "quality", "1":
		return pointers.Int(types.BumpQuality), nil
	case "interface", "2":
		return pointers.Int(types.BumpInterface), nil
	default:
		return nil, fmt.Errorf("unknown bump %q: want quality or interface", s)
	}
}

func bumpName(b *int) string {
	switch {
	case b == nil:
		return "-"
	case *b == types.BumpQuality:
		return "quality"
	case *b == types.BumpInterface:
		return "interface"
	default:
		return fmt.Sprint(*b)
	}
}

func runQueueList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		dbc := dbcOf(ctx)
		items, err := a.Catalog.Queue().List(dbc)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE_ID\tFILENAME\tLEVEL\tBUMP")
		for _, it := range items {
			f, err := a.Catalog.GetFile(dbc, it.FileID)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%d\t%s\t%g\t%s\n", f.FileID, f.Filename, f.DataLevel, bumpName(it.VersionBump))
		}
		return tw.Flush()
	})
}

func runQueuePush(cmd *cobra.Command, args []string) error {
	bump, err := parseBump(pushBump)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		dbc := dbcOf(ctx)
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			f, err := a.Catalog.GetFile(dbc, arg)
			if err != nil {
				return err
			}
			ids = append(ids, f.FileID)
		}
		added, err := a.Catalog.Queue().Push(dbc, ids, bump)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d of %d\n", len(added), len(ids))
		return nil
	})
}

func runQueueFlush(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		n, err := a.Catalog.Queue().Flush(dbcOf(ctx))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", n)
		return nil
	})
}

func runQueueClean(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		n, err := a.Catalog.Queue().Clean(dbcOf(ctx))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", n)
		return nil
	})
}
