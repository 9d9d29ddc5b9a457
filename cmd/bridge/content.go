package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"creator-bridge/internal/app"
	"creator-bridge/internal/bridge"
)

// connection command
var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Manage platform connections",
}

var connectionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store an authorized platform account",
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		accountID, _ := cmd.Flags().GetString("account-id")
		handle, _ := cmd.Flags().GetString("handle")
		token, _ := cmd.Flags().GetString("token")
		refresh, _ := cmd.Flags().GetString("refresh-token")
		expiresIn, _ := cmd.Flags().GetDuration("expires-in")

		in := bridge.ConnectionInput{
			Platform:      platform,
			AccountID:     accountID,
			AccountHandle: handle,
			AccessToken:   token,
			RefreshToken:  refresh,
		}
		if expiresIn > 0 {
			exp := time.Now().UTC().Add(expiresIn)
			in.TokenExpiry = &exp
		}

		return withApp(cmd, "AddConnection", false, func(a *app.BridgeApp) error {
			conn, err := a.Service().AddConnection(cmd.Context(), a.UserID(), in)
			if err != nil {
				return err
			}
			fmt.Printf("Connection %s added for %s @%s\n", conn.ID, conn.Platform, conn.AccountHandle)
			return nil
		})
	},
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List platform connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListConnections", false, func(a *app.BridgeApp) error {
			conns, err := a.Service().ListConnections(cmd.Context(), a.UserID())
			if err != nil {
				return err
			}
			if len(conns) == 0 {
				fmt.Println("No connections.")
				return nil
			}
			for _, c := range conns {
				state := "active"
				if !c.IsActive {
					state = "inactive"
				}
				expiry := "no expiry"
				if c.TokenExpiry != nil {
					expiry = "expires " + humanize.Time(*c.TokenExpiry)
				}
				fmt.Printf("%s  %-9s  @%-20s  %-8s  %s\n", c.ID, c.Platform, c.AccountHandle, state, expiry)
			}
			return nil
		})
	},
}

var connectionDeactivateCmd = &cobra.Command{
	Use:   "deactivate CONNECTION_ID",
	Short: "Stop using a platform connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "DeactivateConnection", false, func(a *app.BridgeApp) error {
			if err := a.Service().DeactivateConnection(cmd.Context(), a.UserID(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Connection %s deactivated\n", args[0])
			return nil
		})
	},
}

var connectionTestCmd = &cobra.Command{
	Use:   "test CONNECTION_ID",
	Short: "Check that a connection's credentials still work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "TestConnection", true, func(a *app.BridgeApp) error {
			check, err := a.Service().TestConnection(cmd.Context(), a.UserID(), args[0])
			if err != nil {
				return err
			}
			if !check.OK {
				return fmt.Errorf("connection %s failed: %s", check.ConnectionID, check.Message)
			}
			fmt.Println(check.Message)
			if check.LatestVideoID != "" {
				fmt.Printf("Latest post: %s\n", check.LatestVideoID)
			}
			return nil
		})
	},
}

var connectionAutoSyncCmd = &cobra.Command{
	Use:   "autosync CONNECTION_ID",
	Short: "Set the auto-sync default for posts imported through a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")
		dests, _ := cmd.Flags().GetStringSlice("dest")

		return withApp(cmd, "SetConnectionAutoSync", false, func(a *app.BridgeApp) error {
			conn, err := a.Service().SetConnectionAutoSync(cmd.Context(), a.UserID(), args[0], !off, dests)
			if err != nil {
				return err
			}
			if !conn.AutoSync {
				fmt.Printf("Auto-sync disabled for connection %s\n", conn.ID)
				return nil
			}
			fmt.Printf("Auto-sync enabled for connection %s: %s\n", conn.ID, strings.Join(conn.AutoSyncDestinations, ", "))
			return nil
		})
	},
}

var connectionStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize active connections per platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ConnectionStats", false, func(a *app.BridgeApp) error {
			stats, err := a.Service().ConnectionStats(cmd.Context(), a.UserID())
			if err != nil {
				return err
			}
			fmt.Printf("%d active connections, %d with auto-sync\n", stats.TotalConnections, stats.AutoSyncEnabled)
			for _, name := range slices.Sorted(maps.Keys(stats.Platforms)) {
				p := stats.Platforms[name]
				fmt.Printf("%s: %d\n", name, p.Count)
				for _, acct := range p.Accounts {
					checked := "never checked"
					if acct.LastCheckedAt != nil {
						checked = "checked " + humanize.Time(*acct.LastCheckedAt)
					}
					fmt.Printf("  %s  @%-20s  connected %s  %s\n", acct.ID, acct.AccountHandle, humanize.Time(acct.ConnectedAt), checked)
				}
			}
			return nil
		})
	},
}

// browse command
var browseCmd = &cobra.Command{
	Use:   "browse CONNECTION_ID",
	Short: "List recent posts on a connected account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cursor, _ := cmd.Flags().GetString("cursor")
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(cmd, "Browse", true, func(a *app.BridgeApp) error {
			page, err := a.Service().Browse(cmd.Context(), a.UserID(), args[0], cursor, limit)
			if err != nil {
				return err
			}
			for _, it := range page.Items {
				mark := " "
				if it.IsImported {
					mark = "*"
				}
				posted := ""
				if it.Video.PostedAt != nil {
					posted = humanize.Time(*it.Video.PostedAt)
				}
				fmt.Printf("%s %-22s  %-14s  %s\n", mark, it.Video.ExternalID, posted, oneLine(it.Video.Caption, 60))
			}
			if page.HasMore {
				fmt.Printf("\nMore: --cursor %s\n", page.NextCursor)
			}
			return nil
		})
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import VIDEO_ID...",
	Short: "Import posts and deliver them to destinations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		connID, _ := cmd.Flags().GetString("connection")
		dests, _ := cmd.Flags().GetStringSlice("dest")
		priority, _ := cmd.Flags().GetInt("priority")
		autoSync, _ := cmd.Flags().GetStringSlice("auto-sync")
		noWait, _ := cmd.Flags().GetBool("no-wait")

		req := bridge.ImportRequest{
			Priority:     priority,
			Method:       bridge.ImportManual,
			Destinations: dests,
		}
		if len(args) > 1 {
			req.Method = bridge.ImportBulk
		}
		if len(autoSync) > 0 {
			req.AutoSync = bridge.AutoSync{Enabled: true, Destinations: autoSync}
		}
		for _, id := range args {
			req.Videos = append(req.Videos, bridge.ImportItem{Platform: platform, ConnectionID: connID, VideoID: id})
		}

		return withApp(cmd, "Import", true, func(a *app.BridgeApp) error {
			res, err := a.Service().Import(cmd.Context(), a.UserID(), req)
			if err != nil {
				return err
			}
			for _, r := range res.Results {
				switch {
				case r.AlreadyImported:
					fmt.Printf("= %s  already imported as %s\n", r.VideoID, r.ContentID)
				case r.Success:
					fmt.Printf("+ %s  imported as %s\n", r.VideoID, r.ContentID)
				default:
					fmt.Printf("! %s  %s\n", r.VideoID, r.Error)
				}
			}
			s := res.Summary
			fmt.Printf("\n%d imported, %d already imported, %d failed\n", s.Successful, s.AlreadyImported, s.Failed)

			if noWait || len(dests) == 0 {
				return nil
			}
			return drain(cmd, a)
		})
	},
}

// content command
var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Inspect and edit imported content",
}

var contentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported content",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		platform, _ := cmd.Flags().GetString("platform")
		search, _ := cmd.Flags().GetString("search")
		archived, _ := cmd.Flags().GetBool("archived")
		limit, _ := cmd.Flags().GetInt("limit")
		page, _ := cmd.Flags().GetInt("page")

		f := bridge.RecordFilter{Platform: platform, Search: search, IncludeArchived: archived, Limit: limit}
		if page > 1 {
			f.Offset = (page - 1) * limit
		}
		if status != "" {
			st, err := bridge.ParseStatus(status)
			if err != nil {
				return err
			}
			f.Status = st
		}

		return withApp(cmd, "ListContent", false, func(a *app.BridgeApp) error {
			recs, err := a.Service().ListContent(cmd.Context(), a.UserID(), f)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No content found.")
				return nil
			}
			for _, r := range recs {
				fmt.Printf("%s  %-9s  %-11s  %-14s  %s\n", r.ID, r.SourcePlatform, r.Status, humanize.Time(r.CreatedAt), oneLine(r.Title(), 50))
			}
			return nil
		})
	},
}

var contentShowCmd = &cobra.Command{
	Use:   "show CONTENT_ID",
	Short: "Show one record with its sync history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "GetContent", false, func(a *app.BridgeApp) error {
			r, err := a.Service().GetContent(cmd.Context(), a.UserID(), args[0])
			if err != nil {
				return err
			}
			printRecord(r)
			return nil
		})
	},
}

var contentEditCmd = &cobra.Command{
	Use:   "edit CONTENT_ID",
	Short: "Edit title, description, tags or priority",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var edit bridge.MetadataEdit
		flags := cmd.Flags()
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			edit.EditedTitle = &v
		}
		if flags.Changed("description") {
			v, _ := flags.GetString("description")
			edit.EditedDescription = &v
		}
		if flags.Changed("tags") {
			edit.Tags, _ = flags.GetStringSlice("tags")
		}
		if flags.Changed("thumbnail") {
			v, _ := flags.GetString("thumbnail")
			edit.CustomThumbnail = &v
		}
		if flags.Changed("priority") {
			v, _ := flags.GetInt("priority")
			edit.Priority = &v
		}

		return withApp(cmd, "UpdateMetadata", false, func(a *app.BridgeApp) error {
			r, err := a.Service().UpdateMetadata(cmd.Context(), a.UserID(), args[0], edit)
			if err != nil {
				return err
			}
			printRecord(r)
			return nil
		})
	},
}

var contentAutoSyncCmd = &cobra.Command{
	Use:   "autosync CONTENT_ID",
	Short: "Turn scheduled delivery on or off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")
		dests, _ := cmd.Flags().GetStringSlice("dest")

		return withApp(cmd, "SetAutoSync", false, func(a *app.BridgeApp) error {
			if err := a.Service().SetAutoSync(cmd.Context(), a.UserID(), args[0], !off, dests); err != nil {
				return err
			}
			if off {
				fmt.Printf("Auto-sync disabled for %s\n", args[0])
			} else {
				fmt.Printf("Auto-sync enabled for %s to %s\n", args[0], strings.Join(dests, ", "))
			}
			return nil
		})
	},
}

var contentArchiveCmd = &cobra.Command{
	Use:   "archive CONTENT_ID",
	Short: "Hide a record from listings and auto-sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Archive", false, func(a *app.BridgeApp) error {
			if err := a.Service().Archive(cmd.Context(), a.UserID(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Archived %s\n", args[0])
			return nil
		})
	},
}

func printRecord(r *bridge.ContentRecord) {
	fmt.Printf("ID:          %s\n", r.ID)
	fmt.Printf("Source:      %s post %s\n", r.SourcePlatform, r.SourcePostID)
	if r.SourceURL != "" {
		fmt.Printf("URL:         %s\n", r.SourceURL)
	}
	fmt.Printf("Status:      %s\n", r.Status)
	fmt.Printf("Priority:    %d\n", r.Priority)
	fmt.Printf("Title:       %s\n", r.Title())
	if len(r.Metadata.Tags) > 0 {
		fmt.Printf("Tags:        %s\n", strings.Join(r.Metadata.Tags, ", "))
	}
	if len(r.Metadata.Hashtags) > 0 {
		fmt.Printf("Hashtags:    #%s\n", strings.Join(r.Metadata.Hashtags, " #"))
	}
	if r.Media.FileSize > 0 {
		fmt.Printf("Media:       %s %s\n", r.Media.Format, humanize.IBytes(uint64(r.Media.FileSize)))
	}
	if len(r.Targets) > 0 {
		fmt.Printf("Pending:     %s\n", strings.Join(r.Targets, ", "))
	}
	if r.AutoSync.Enabled {
		last := "never"
		if r.AutoSync.LastAutoSyncAt != nil {
			last = humanize.Time(*r.AutoSync.LastAutoSyncAt)
		}
		fmt.Printf("Auto-sync:   %s (last %s)\n", strings.Join(r.AutoSync.Destinations, ", "), last)
	}
	if r.IsArchived {
		fmt.Printf("Archived:    yes\n")
	}
	fmt.Printf("Created:     %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(r.SyncHistory) > 0 {
		fmt.Println("\nSync history:")
		for _, e := range r.SyncHistory {
			detail := e.DestinationURL
			if e.Error != "" {
				detail = e.Error
			}
			fmt.Printf("  %s  %-12s  %-9s  %s\n", e.StartedAt.Format("2006-01-02 15:04:05"), e.Destination, e.Status, detail)
		}
	}
	if len(r.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range r.Errors {
			fmt.Printf("  %s  %-10s  %s\n", e.OccurredAt.Format("2006-01-02 15:04:05"), e.Stage, e.Message)
		}
	}
}

func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}

func init() {
	connectionAddCmd.Flags().String("platform", "", "Platform of the account (instagram or tiktok)")
	connectionAddCmd.Flags().String("account-id", "", "Platform account id")
	connectionAddCmd.Flags().String("handle", "", "Account handle")
	connectionAddCmd.Flags().String("token", "", "OAuth access token")
	connectionAddCmd.Flags().String("refresh-token", "", "OAuth refresh token")
	connectionAddCmd.Flags().Duration("expires-in", 0, "Access token lifetime")
	_ = connectionAddCmd.MarkFlagRequired("platform")
	_ = connectionAddCmd.MarkFlagRequired("account-id")
	_ = connectionAddCmd.MarkFlagRequired("token")
	connectionCmd.AddCommand(connectionAddCmd)
	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionDeactivateCmd)

	connectionAutoSyncCmd.Flags().Bool("off", false, "Disable the auto-sync default")
	connectionAutoSyncCmd.Flags().StringSlice("dest", nil, "Destinations for auto-sync")
	connectionCmd.AddCommand(connectionTestCmd)
	connectionCmd.AddCommand(connectionAutoSyncCmd)
	connectionCmd.AddCommand(connectionStatsCmd)

	browseCmd.Flags().String("cursor", "", "Page cursor from a previous listing")
	browseCmd.Flags().IntP("limit", "n", 25, "Posts per page")

	importCmd.Flags().String("platform", "", "Platform the posts belong to")
	importCmd.Flags().String("connection", "", "Connection id used to read the posts")
	importCmd.Flags().StringSlice("dest", nil, "Destination to deliver to (repeatable)")
	importCmd.Flags().Int("priority", 5, "Queue priority, 0 to 10")
	importCmd.Flags().StringSlice("auto-sync", nil, "Enable scheduled delivery to these destinations")
	importCmd.Flags().Bool("no-wait", false, "Return after import without processing the queue")
	_ = importCmd.MarkFlagRequired("platform")
	_ = importCmd.MarkFlagRequired("connection")

	contentListCmd.Flags().String("status", "", "Only records with this status")
	contentListCmd.Flags().String("platform", "", "Only records from this platform")
	contentListCmd.Flags().String("search", "", "Match caption or title")
	contentListCmd.Flags().Bool("archived", false, "Include archived records")
	contentListCmd.Flags().IntP("limit", "n", 20, "Records per page")
	contentListCmd.Flags().Int("page", 1, "Page number")

	contentEditCmd.Flags().String("title", "", "Edited title")
	contentEditCmd.Flags().String("description", "", "Edited description")
	contentEditCmd.Flags().StringSlice("tags", nil, "Replace tags")
	contentEditCmd.Flags().String("thumbnail", "", "Custom thumbnail URL")
	contentEditCmd.Flags().Int("priority", 0, "Queue priority, 0 to 10")

	contentAutoSyncCmd.Flags().Bool("off", false, "Disable auto-sync")
	contentAutoSyncCmd.Flags().StringSlice("dest", nil, "Destinations for auto-sync")

	contentCmd.AddCommand(contentListCmd)
	contentCmd.AddCommand(contentShowCmd)
	contentCmd.AddCommand(contentEditCmd)
	contentCmd.AddCommand(contentAutoSyncCmd)
	contentCmd.AddCommand(contentArchiveCmd)
}
