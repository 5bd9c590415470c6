package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/stats"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
	"github.com/zhouzirui/emotrack/backend/internal/storage/remote"
)

func listCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			sessions, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			tracking.SortByStartDesc(sessions)
			if limit > 0 && len(sessions) > limit {
				sessions = sessions[:limit]
			}

			docs := make([]tracking.Document, len(sessions))
			for i, s := range sessions {
				docs[i] = tracking.ToDocument(s)
			}
			return render(cmd.OutOrStdout(), outputFormat, docs, func(p *printer) {
				p.sessionTable(sessions)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of sessions (0 for all)")
	return cmd
}

func showCmd() *cobra.Command {
	var detail bool
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			s, ok, err := store.FindByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			if !ok {
				return fmt.Errorf("session %s not found", args[0])
			}

			d := stats.Detail(s)
			var payload any = tracking.ToDocument(s)
			if detail {
				payload = d
			}
			return render(cmd.OutOrStdout(), outputFormat, payload, func(p *printer) {
				p.sessionDetail(d, detail)
			})
		},
	}
	cmd.Flags().BoolVar(&detail, "detail", false, "Include distribution and timeline")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Aggregate statistics across all sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			sessions, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			summary := stats.Rollup(sessions)
			return render(cmd.OutOrStdout(), outputFormat, summary, func(p *printer) {
				p.summary(summary)
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete sessions by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			var missing []string
			for _, id := range args {
				removed, err := store.Delete(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to delete %s: %w", id, err)
				}
				if !removed {
					missing = append(missing, id)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("deleted "+id))
			}
			if len(missing) > 0 {
				return fmt.Errorf("not found: %v", missing)
			}
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			_, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear sessions: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("all sessions removed"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm removal of all sessions")
	return cmd
}

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Copy sessions from the SYNC_URL backend into the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			mirror, ok := store.(*remote.Mirror)
			if !ok {
				return errors.New("SYNC_URL is not configured")
			}
			started := time.Now()
			n, err := mirror.Pull(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(
				fmt.Sprintf("pulled %d session(s) from %s in %s", n, cfg.Sync.URL, time.Since(started).Round(time.Millisecond))))
			return nil
		},
	}
}
