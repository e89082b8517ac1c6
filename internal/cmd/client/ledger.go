package client

import (
	"encoding/json"

	transports "github.com/rzbill/tracebus/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// NewLedgerCommand constructs the `ledger` command, which pages through the
// session journal.
func NewLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Read the consumer session journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, _ := cmd.Flags().GetUint64("start")
			limit, _ := cmd.Flags().GetInt("limit")
			reverse, _ := cmd.Flags().GetBool("reverse")
			all, _ := cmd.Flags().GetBool("all")

			t, err := getTransport(cmd)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			q := transports.LedgerQuery{Start: start, Limit: limit, Reverse: reverse}
			for {
				page, err := t.ReadLedger(cmd.Context(), q)
				if err != nil {
					return err
				}
				for _, e := range page.Entries {
					_ = enc.Encode(e)
				}
				if !all || page.Next == 0 {
					return nil
				}
				q.Start = page.Next
			}
		},
	}
	cmd.Flags().Uint64("start", 0, "First sequence to read (0 = oldest, or newest with --reverse)")
	cmd.Flags().Int("limit", 100, "Entries per page")
	cmd.Flags().Bool("reverse", false, "Newest first")
	cmd.Flags().Bool("all", false, "Follow pages until the end")
	return cmd
}
