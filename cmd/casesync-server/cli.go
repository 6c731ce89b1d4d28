package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rcfe/casesync/internal/config"
	"github.com/rcfe/casesync/internal/domain/members"
	"github.com/rcfe/casesync/internal/platform/db"
	"github.com/rcfe/casesync/migrations"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	headColor = color.New(color.FgCyan, color.Bold)
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			okColor.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			headColor.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			for _, s := range statuses {
				status, appliedAt := warnColor.Sprint("pending"), ""
				if s.Applied {
					status = okColor.Sprint("applied")
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
			}
			return w.Flush()
		},
	})

	return cmd
}

// openMigrator only needs the database, so it skips the full config checks.
func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func syncCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the member cache from Caspio once and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, newLogger())
			if err != nil {
				return err
			}
			defer a.Close()

			mode := members.SyncIncremental
			if full {
				mode = members.SyncFull
			}
			if err := a.refresher.Refresh(ctx, mode); err != nil {
				errColor.Printf("sync failed: %v\n", err)
				return err
			}

			state := a.refresher.State()
			if res := state.LastResult; res != nil {
				printer := okColor
				if !res.Complete {
					printer = warnColor
				}
				printer.Printf("%s sync: %d rows in %d page(s), complete=%t\n", res.Mode, res.Count, res.Pages, res.Complete)
			} else {
				warnColor.Println("another replica holds the sync lock; nothing ran")
			}

			status, err := a.cache.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("cache: %s, %d rows\n", status.State, status.RowCount)
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "reload every row instead of rows changed since the last sync")
	return cmd
}

func assignmentsCmd() *cobra.Command {
	var staffID string
	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "List the members assigned to a staff member, grouped by facility",
		RunE: func(cmd *cobra.Command, args []string) error {
			if staffID == "" {
				return errors.New("--staff is required")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, newLogger())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.resolver.ResolveAssignedMembers(ctx, staffID)
			if errors.Is(err, members.ErrCacheEmpty) {
				errColor.Println("member cache is empty; run `casesync-server sync --full` first")
				return err
			}
			if err != nil {
				return err
			}

			headColor.Printf("%s: %d member(s) in %d facility(ies) via %s path\n",
				staffID, res.TotalMembers, len(res.Groups), res.Path)
			for _, g := range res.Groups {
				okColor.Printf("\n%s", g.Name)
				fmt.Printf(" (%d)\n", g.MemberCount)
				if g.Address != "" {
					fmt.Printf("  %s\n", g.Address)
				}
				for _, m := range g.Members {
					fmt.Printf("  - %s [%s]\n", m.Name, m.ClientID)
				}
			}
			if n := res.Excluded.Total(); n > 0 {
				warnColor.Printf("\n%d suspended: %d on hold, %d authorization expired\n",
					n, res.Excluded.Hold, res.Excluded.AuthExpired)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&staffID, "staff", "", "staff email, name or id")
	return cmd
}
