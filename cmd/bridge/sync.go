package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"creator-bridge/internal/app"
	"creator-bridge/internal/bridge"
)

// drain processes the queue in the foreground and reports how much is staged.
func drain(cmd *cobra.Command, a *app.BridgeApp) error {
	start := time.Now()
	if err := a.Drain(cmd.Context()); err != nil {
		return fmt.Errorf("processing queue: %w", err)
	}
	size, err := a.StagingSize()
	if err != nil {
		return err
	}
	fmt.Printf("Queue processed in %s, %s left in staging\n", time.Since(start).Round(time.Millisecond), humanize.IBytes(uint64(size)))
	return nil
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync CONTENT_ID...",
	Short: "Deliver content to a destination",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, _ := cmd.Flags().GetString("dest")
		noWait, _ := cmd.Flags().GetBool("no-wait")

		return withApp(cmd, "Sync", false, func(a *app.BridgeApp) error {
			accepted := 0
			if len(args) == 1 {
				ack, err := a.Service().SyncOne(cmd.Context(), a.UserID(), args[0], dest)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s (%s)\n", ack.ContentID, ack.Ack, ack.Status)
				if ack.Accepted {
					accepted++
				}
			} else {
				res, err := a.Service().BulkSync(cmd.Context(), a.UserID(), args, dest)
				if err != nil {
					return err
				}
				for _, it := range res.Results {
					if it.Error != "" {
						fmt.Printf("%s  %s: %s\n", it.ID, it.Status, it.Error)
						continue
					}
					fmt.Printf("%s  %s\n", it.ID, it.Status)
					if it.Status == bridge.AckQueued {
						accepted++
					}
				}
			}
			if noWait || accepted == 0 {
				return nil
			}
			return drain(cmd, a)
		})
	},
}

// retry command
var retryCmd = &cobra.Command{
	Use:   "retry CONTENT_ID",
	Short: "Requeue a failed record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noWait, _ := cmd.Flags().GetBool("no-wait")

		return withApp(cmd, "Retry", false, func(a *app.BridgeApp) error {
			ack, err := a.Service().Retry(cmd.Context(), a.UserID(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", ack.ContentID, ack.Status)
			if noWait {
				return nil
			}
			return drain(cmd, a)
		})
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "SyncStatus", false, func(a *app.BridgeApp) error {
			rep, err := a.Service().SyncStatus(cmd.Context(), a.UserID())
			if err != nil {
				return err
			}
			fmt.Printf("Queued:      %d\n", rep.QueuedCount)
			fmt.Printf("Processing:  %d\n", rep.ProcessingCount)
			fmt.Printf("Synced:      %d\n", rep.CompletedCount)
			fmt.Printf("Failed:      %d\n", rep.FailedCount)

			if len(rep.RecentCompletions) == 0 {
				return nil
			}
			fmt.Println("\nRecent deliveries:")
			for _, c := range rep.RecentCompletions {
				fmt.Printf("  %-14s  %-12s  %s  %s\n", humanize.Time(c.CompletedAt), c.Destination, oneLine(c.Title, 40), c.DestinationURL)
			}
			return nil
		})
	},
}

// overview command
var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Count content by status and platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Overview", false, func(a *app.BridgeApp) error {
			ov, err := a.Service().Overview(cmd.Context(), a.UserID())
			if err != nil {
				return err
			}
			fmt.Printf("Total: %s\n\n", humanize.Comma(int64(ov.Total)))
			for _, st := range bridge.Statuses {
				fmt.Printf("  %-12s %d\n", st, ov.ByStatus[st])
			}
			platforms := make([]string, 0, len(ov.ByPlatform))
			for p := range ov.ByPlatform {
				platforms = append(platforms, p)
			}
			sort.Strings(platforms)
			fmt.Println()
			for _, p := range platforms {
				fmt.Printf("  %-12s %d\n", p, ov.ByPlatform[p])
			}
			return nil
		})
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the queue and run scheduled auto-sync until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Run", false, func(a *app.BridgeApp) error {
			return a.Run(cmd.Context())
		})
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker pool, the scheduler and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Serve", true, func(a *app.BridgeApp) error {
			return a.Serve(cmd.Context())
		})
	},
}

// token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an API token for the configured user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		return withApp(cmd, "IssueToken", false, func(a *app.BridgeApp) error {
			token, err := a.IssueToken(ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		})
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "MigrationStatus", false, func(a *app.BridgeApp) error {
			st, err := a.MigrationStatus()
			if err != nil {
				return err
			}
			dirty := ""
			if st.Dirty {
				dirty = " (dirty)"
			}
			fmt.Printf("Schema version %d of %d%s\n", st.Current, st.Latest, dirty)
			return nil
		})
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a consistent copy of the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "BackupDatabase", false, func(a *app.BridgeApp) error {
			if err := a.BackupDatabase(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Database copied to %s\n", args[0])
			return nil
		})
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Schema", false, func(a *app.BridgeApp) error {
			schema, err := a.Schema(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(schema)
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().String("dest", "", "Destination name")
	syncCmd.Flags().Bool("no-wait", false, "Return after queueing without processing")
	_ = syncCmd.MarkFlagRequired("dest")

	retryCmd.Flags().Bool("no-wait", false, "Return after queueing without processing")

	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")

	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbSchemaCmd)
}
