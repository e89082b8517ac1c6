package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/spf13/cobra"
)

// NewEmitCommand constructs the `emit` command, which injects one event as
// if a producer had raised it.
func NewEmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Dispatch a test event to every consumer queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			typ, _ := cmd.Flags().GetString("type")
			guest, _ := cmd.Flags().GetUint16("guest")
			thread, _ := cmd.Flags().GetInt32("thread")
			data, _ := cmd.Flags().GetString("data")
			dataB64, _ := cmd.Flags().GetString("data-b64")

			t, err := eventqueue.ParseType(typ)
			if err != nil {
				return err
			}
			rec := eventqueue.Record{Type: t, Guest: guest, Thread: thread}
			switch {
			case data != "" && dataB64 != "":
				return fmt.Errorf("use only one of --data and --data-b64")
			case dataB64 != "":
				b, err := base64.StdEncoding.DecodeString(dataB64)
				if err != nil {
					return fmt.Errorf("invalid --data-b64: %w", err)
				}
				rec.Payload = b
			case data != "":
				rec.Payload = []byte(data)
			}

			tr, err := getTransport(cmd)
			if err != nil {
				return err
			}
			res, err := tr.Emit(cmd.Context(), rec)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		},
	}
	cmd.Flags().String("type", "probe_fire", "Event type name or number")
	cmd.Flags().Uint16("guest", 0, "Guest id")
	cmd.Flags().Int32("thread", 0, "Thread id")
	cmd.Flags().String("data", "", "Payload as text")
	cmd.Flags().String("data-b64", "", "Payload as base64")
	return cmd
}
