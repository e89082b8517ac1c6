package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	transports "github.com/rzbill/tracebus/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

const closeTimeout = 5 * time.Second

// NewWatchCommand constructs the `watch` command: open a queue for this
// process, configure it, drain it on an interval and close it on exit.
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open a consumer queue and print events as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			capacity, _ := cmd.Flags().GetInt("capacity")
			maskStr, _ := cmd.Flags().GetString("types")
			filter, _ := cmd.Flags().GetString("filter")
			interval, _ := cmd.Flags().GetDuration("interval")
			batch, _ := cmd.Flags().GetInt("batch")
			limit, _ := cmd.Flags().GetInt("limit")
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}

			var set transports.Settings
			set.Capacity = capacity
			set.Filter = filter
			if maskStr != "" {
				m, err := parseMask(maskStr)
				if err != nil {
					return err
				}
				set.Mask = m
			}

			t, err := getTransport(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			h, err := t.Open(ctx)
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "watching as pid %d (session %s)\n", h.PID, h.Session)
			defer func() {
				cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				st, cerr := t.Close(cctx)
				if cerr != nil {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "close:", cerr)
					return
				}
				_ = json.NewEncoder(cmd.ErrOrStderr()).Encode(st)
			}()

			if set != (transports.Settings{}) {
				if err := t.Configure(ctx, set); err != nil {
					return fmt.Errorf("configure: %w", err)
				}
			}
			return watchLoop(ctx, t, cmd, interval, batch, limit)
		},
	}
	cmd.Flags().Int("capacity", 0, "Queue capacity (0 keeps the server default)")
	cmd.Flags().String("types", "", "Event types to receive: names/numbers separated by commas, or a 0x mask")
	cmd.Flags().String("filter", "", "CEL filter over event_type, guest, thread, size, text and json")
	cmd.Flags().Duration("interval", 100*time.Millisecond, "Drain interval")
	cmd.Flags().Int("batch", 0, "Max records per drain (0 = all pending)")
	cmd.Flags().Int("limit", 0, "Stop after N records (0 = until interrupted)")
	return cmd
}

func watchLoop(ctx context.Context, t transports.ConsumerTransport, cmd *cobra.Command, interval time.Duration, batch, limit int) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	seen := 0
	for {
		recs, err := t.Drain(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("drain: %w", err)
		}
		for _, r := range recs {
			_ = enc.Encode(decodedRecord(r))
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// NewStatsCommand constructs the operator `stats` command. Each CLI
// invocation is its own process, so the queue is found by owner pid in the
// consumer listing.
func NewStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats --pid PID",
		Short: "Show counters of the queue owned by a process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pid, _ := cmd.Flags().GetInt("pid")
			if pid <= 0 {
				return fmt.Errorf("--pid must be positive")
			}
			t, err := getTransport(cmd)
			if err != nil {
				return err
			}
			list, err := t.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range list {
				if c.Stats.Owner != pid {
					continue
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}
			return fmt.Errorf("no consumer queue for pid %d", pid)
		},
	}
	cmd.Flags().Int("pid", 0, "Owner pid of the queue")
	_ = cmd.MarkFlagRequired("pid")
	return cmd
}

// NewConsumersCommand constructs the operator `consumers` listing.
func NewConsumersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consumers",
		Short: "List open consumer queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := getTransport(cmd)
			if err != nil {
				return err
			}
			list, err := t.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%-8s %-36s %8s %8s %10s %8s %s\n", "PID", "SESSION", "LEN", "CAP", "ADMITTED", "DROPS", "MASK")
			for _, c := range list {
				_, _ = fmt.Fprintf(out, "%-8d %-36s %8d %8d %10d %8d %s\n",
					c.Stats.Owner, c.Session, c.Stats.Len, c.Stats.Capacity, c.Stats.Admitted, c.Stats.Drops, c.Stats.Mask)
			}
			return nil
		},
	}
}
