package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/DarkarBlays/inventario/internal/api"
	"github.com/DarkarBlays/inventario/internal/client"
	"github.com/DarkarBlays/inventario/internal/reconcile"
	"github.com/DarkarBlays/inventario/internal/store"
	"github.com/spf13/cobra"
)

func newPendingCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show outbox entries awaiting delivery, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				entries, err := c.DrainPending(ctx, limit)
				if err != nil {
					return err
				}
				return g.printEntries(entries)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to show (0 = all)")
	return cmd
}

func newAckCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ack <entry-id>...",
		Short: "Mark outbox entries as delivered",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				for _, id := range ids {
					if err := c.Acknowledge(ctx, id); err != nil {
						return fmt.Errorf("entry %d: %w", id, err)
					}
					if !g.json {
						fmt.Printf("Acknowledged entry %d\n", id)
					}
				}
				if g.json {
					return outputJSON(map[string][]int64{"acknowledged": ids})
				}
				return nil
			})
		},
	}
}

func newReportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Apply a delivery report read from stdin",
		Long: `Reads a JSON array of {"entry_id": N, "delivered": bool, "error": "..."}
objects from stdin. Delivered entries are acknowledged; failed ones stay pending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var results []reconcile.Result
			dec := json.NewDecoder(cmd.InOrStdin())
			dec.DisallowUnknownFields()
			if err := dec.Decode(&results); err != nil {
				return fmt.Errorf("read report: %w", err)
			}
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				sum, err := c.Report(ctx, results)
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(sum)
				}
				fmt.Printf("Acknowledged: %d\n", sum.Acknowledged)
				fmt.Printf("Failed:       %d\n", sum.Failed)
				if len(sum.Missing) > 0 {
					fmt.Printf("Missing:      %v\n", sum.Missing)
				}
				return nil
			})
		},
	}
}

func newOutboxCmd(g *globals) *cobra.Command {
	var (
		afterID int64
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Show the outbox log, delivered entries included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				entries, err := c.ListOutbox(ctx, afterID, limit)
				if err != nil {
					return err
				}
				return g.printEntries(entries)
			})
		},
	}
	cmd.Flags().Int64Var(&afterID, "after", 0, "only entries with a larger id")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to show (0 = all)")
	return cmd
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and outbox status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(st)
				}
				fmt.Printf("Instance: %s\n", st.Instance)
				fmt.Printf("State:    %s\n", st.State)
				if st.Reason != "" {
					fmt.Printf("Reason:   %s\n", st.Reason)
				}
				fmt.Printf("Uptime:   %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
				fmt.Printf("Pending:  %d\n", st.Pending)
				fmt.Printf("Synced:   %d\n", st.Synced)
				if st.OldestPendingAt > 0 {
					fmt.Printf("Oldest:   %s\n", time.UnixMilli(st.OldestPendingAt).Format(time.RFC3339))
				}
				fmt.Printf("Relay:    %v\n", st.RelayEnabled)
				return nil
			})
		},
	}
}

func newWatchCmd(g *globals) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return c.Watch(ctx, prefix, func(e api.Event) error {
				if g.json {
					return outputJSON(e)
				}
				fmt.Printf("%s  %-22s %v\n",
					time.UnixMilli(e.OccurredAtUnixMs).Format(time.TimeOnly), e.Kind, e.Payload)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only events whose kind starts with this prefix")
	return cmd
}

func (g *globals) printEntries(entries []store.OutboxEntry) error {
	if g.json {
		return outputJSON(entries)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOP\tTABLE\tRECORD\tSTATUS\tCREATED")
	for _, e := range entries {
		record := "-"
		if e.RecordID != nil {
			record = fmt.Sprint(*e.RecordID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.Operation, e.TargetTable, record, e.Status,
			time.UnixMilli(e.CreatedAt).Format(time.DateTime))
	}
	return w.Flush()
}
