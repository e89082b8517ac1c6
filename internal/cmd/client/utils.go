package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	transports "github.com/rzbill/tracebus/internal/cmd/client/transports"
	cfgpkg "github.com/rzbill/tracebus/internal/config"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	envGRPC      = "TRACEBUS_GRPC"
	envHTTP      = "TRACEBUS_HTTP"
	envTransport = "TRACEBUS_TRANSPORT"
)

// grpcAddrFromEnv returns the gRPC target from TRACEBUS_GRPC or the default
// daemon socket.
func grpcAddrFromEnv() string {
	if addr := os.Getenv(envGRPC); addr != "" {
		return addr
	}
	return "unix://" + cfgpkg.DefaultSocketPath("tracebus-grpc.sock")
}

// httpAddrFromEnv returns the HTTP base from TRACEBUS_HTTP or the default
// daemon socket.
func httpAddrFromEnv() string {
	if addr := os.Getenv(envHTTP); addr != "" {
		return addr
	}
	return "unix://" + cfgpkg.DefaultSocketPath("tracebus.sock")
}

// dialGRPCContext creates a client for the daemon. The Unix socket carries
// the caller's identity, so no transport security is layered on top.
func dialGRPCContext(_ context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// getTransport picks the transport named by --transport.
func getTransport(cmd *cobra.Command) (transports.ConsumerTransport, error) {
	name, _ := cmd.Flags().GetString("transport")
	switch name {
	case "", "grpc":
		return transports.NewGrpcTransport(dialGRPCContext), nil
	case "http":
		return transports.NewHTTPTransport(httpAddrFromEnv())
	}
	return nil, fmt.Errorf("invalid --transport %q; use grpc|http", name)
}

// parseMask accepts a comma-separated list of type names or numbers, or a
// numeric mask with an explicit 0x/0b prefix.
func parseMask(s string) (eventqueue.Mask, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0b") {
		return eventqueue.ParseMask(s)
	}
	var types []eventqueue.Type
	for _, part := range strings.Split(s, ",") {
		t, err := eventqueue.ParseType(part)
		if err != nil {
			return 0, err
		}
		types = append(types, t)
	}
	return eventqueue.MaskOf(types...), nil
}

// decodedRecord returns the record header fields plus one of payload_json,
// payload_text, or payload_b64.
func decodedRecord(r eventqueue.Record) map[string]any {
	out := map[string]any{
		"type":   r.Type.String(),
		"guest":  r.Guest,
		"thread": r.Thread,
	}
	payload := r.Payload
	if len(payload) == 0 {
		return out
	}
	if payload[0] == '{' || payload[0] == '[' {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}
