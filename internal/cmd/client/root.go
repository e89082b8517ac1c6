package client

import (
	"os"

	"github.com/spf13/cobra"
)

// AddCommands registers the client command groups on root, along with the
// persistent --transport flag they share.
func AddCommands(root *cobra.Command) {
	def := os.Getenv(envTransport)
	if def == "" {
		def = "grpc"
	}
	root.PersistentFlags().String("transport", def, "Transport: grpc|http")
	root.AddCommand(
		NewWatchCommand(),
		NewStatsCommand(),
		NewConsumersCommand(),
		NewEmitCommand(),
		NewLedgerCommand(),
	)
}

// NewRoot constructs a root Cobra command holding only the client commands.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "tracebus",
		Short:         "tracebus client commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	AddCommands(root)
	return root
}
