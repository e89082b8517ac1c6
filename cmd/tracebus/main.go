package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clientcmd "github.com/rzbill/tracebus/internal/cmd/client"
	serverrun "github.com/rzbill/tracebus/internal/cmd/server"
	cfgpkg "github.com/rzbill/tracebus/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tracebus",
		Short:         "tracebus event distribution daemon and CLI",
		Long:          "tracebus fans instrumentation events out to per-process consumer queues. This CLI runs the daemon and talks to it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the tracebus daemon (HTTP and gRPC)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			flags := cmd.Flags()
			override := func(c *cfgpkg.Config) {
				if flags.Changed("socket") {
					c.Server.Socket, _ = flags.GetString("socket")
				}
				if flags.Changed("grpc-socket") {
					c.Server.GRPCSocket, _ = flags.GetString("grpc-socket")
				}
				if flags.Changed("http") {
					c.Server.HTTPAddr, _ = flags.GetString("http")
				}
				if flags.Changed("grpc") {
					c.Server.GRPCAddr, _ = flags.GetString("grpc")
				}
				if flags.Changed("data-dir") {
					c.Ledger.DataDir, _ = flags.GetString("data-dir")
				}
				if flags.Changed("no-ledger") {
					noLedger, _ := flags.GetBool("no-ledger")
					c.Ledger.Enabled = !noLedger
				}
				if flags.Changed("configure-policy") {
					c.Queue.ConfigurePolicy, _ = flags.GetString("configure-policy")
				}
				if flags.Changed("ringbuf-pin") {
					c.Producer.RingbufPin, _ = flags.GetString("ringbuf-pin")
				}
				if flags.Changed("allow-anonymous") {
					c.Auth.AllowAnonymous, _ = flags.GetBool("allow-anonymous")
				}
				if flags.Changed("log-level") {
					c.Log.Level, _ = flags.GetString("log-level")
				}
				if flags.Changed("log-format") {
					c.Log.Format, _ = flags.GetString("log-format")
				}
			}
			if err := serverrun.Run(cmd.Context(), serverrun.Options{ConfigPath: configPath, Override: override}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := serverStartCmd.Flags()
	f.String("config", os.Getenv("TRACEBUS_CONFIG"), "Config file (JSON or YAML)")
	f.String("socket", "", "HTTP Unix socket path")
	f.String("grpc-socket", "", "gRPC Unix socket path")
	f.String("http", "", "Optional HTTP TCP listen address (no peer credentials)")
	f.String("grpc", "", "Optional gRPC TCP listen address (no peer credentials)")
	f.String("data-dir", "", "Ledger directory (if not specified, uses OS-specific application data directory)")
	f.Bool("no-ledger", false, "Disable the session ledger")
	f.String("configure-policy", "", "Configure policy: free|once")
	f.String("ringbuf-pin", "", "bpffs path of a pinned ring buffer map to read events from")
	f.Bool("allow-anonymous", false, "Accept callers identified by the X-Tracebus-Pid header")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	clientcmd.AddCommands(rootCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "tracebus:", err)
		cancel()
		os.Exit(1)
	}
}
