package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Queue     QueueConfig     `json:"queue" yaml:"queue" envPrefix:"QUEUE_"`
	Auth      AuthConfig      `json:"auth" yaml:"auth" envPrefix:"AUTH_"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger" envPrefix:"LEDGER_"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Producer  ProducerConfig  `json:"producer" yaml:"producer" envPrefix:"PRODUCER_"`
	Log       LogConfig       `json:"log" yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig describes the control-surface listeners. Unix sockets carry
// peer credentials; the TCP addresses are optional and empty by default.
type ServerConfig struct {
	Socket     string `json:"socket" yaml:"socket" env:"SOCKET"`
	GRPCSocket string `json:"grpcSocket" yaml:"grpcSocket" env:"GRPC_SOCKET"`
	SocketMode uint32 `json:"socketMode" yaml:"socketMode" env:"SOCKET_MODE"`
	HTTPAddr   string `json:"httpAddr" yaml:"httpAddr" env:"HTTP_ADDR"`
	GRPCAddr   string `json:"grpcAddr" yaml:"grpcAddr" env:"GRPC_ADDR"`
}

// QueueConfig holds the defaults applied to newly opened consumer queues.
type QueueConfig struct {
	// DefaultCapacity of zero means unbounded up to the queue maximum.
	DefaultCapacity int `json:"defaultCapacity" yaml:"defaultCapacity" env:"DEFAULT_CAPACITY"`
	// ReapInterval is how often queues whose owner process exited are torn
	// down. Zero disables the periodic sweep.
	ReapInterval Duration `json:"reapInterval" yaml:"reapInterval" env:"REAP_INTERVAL"`
	// DefaultMask accepts decimal, 0x hex or 0b binary.
	DefaultMask     string `json:"defaultMask" yaml:"defaultMask" env:"DEFAULT_MASK"`
	ConfigurePolicy string `json:"configurePolicy" yaml:"configurePolicy" env:"CONFIGURE_POLICY"`
	MaxDrainBatch   int    `json:"maxDrainBatch" yaml:"maxDrainBatch" env:"MAX_DRAIN_BATCH"`
	MaxPayloadBytes int    `json:"maxPayloadBytes" yaml:"maxPayloadBytes" env:"MAX_PAYLOAD_BYTES"`
}

// AuthConfig controls who may open a consumer queue.
type AuthConfig struct {
	AllowRoot      bool     `json:"allowRoot" yaml:"allowRoot" env:"ALLOW_ROOT"`
	AllowUIDs      []uint32 `json:"allowUIDs" yaml:"allowUIDs" env:"ALLOW_UIDS" envSeparator:","`
	AllowGIDs      []uint32 `json:"allowGIDs" yaml:"allowGIDs" env:"ALLOW_GIDS" envSeparator:","`
	AllowAnonymous bool     `json:"allowAnonymous" yaml:"allowAnonymous" env:"ALLOW_ANONYMOUS"`
}

// LedgerConfig controls the on-disk session journal.
type LedgerConfig struct {
	Enabled      bool     `json:"enabled" yaml:"enabled" env:"ENABLED"`
	DataDir      string   `json:"dataDir" yaml:"dataDir" env:"DATA_DIR"`
	Fsync        string   `json:"fsync" yaml:"fsync" env:"FSYNC"`
	Retention    Duration `json:"retention" yaml:"retention" env:"RETENTION"`
	TrimInterval Duration `json:"trimInterval" yaml:"trimInterval" env:"TRIM_INTERVAL"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint" yaml:"endpoint" env:"OTLP_ENDPOINT"`
	Insecure    bool   `json:"insecure" yaml:"insecure" env:"OTLP_INSECURE"`
	ServiceName string `json:"serviceName" yaml:"serviceName" env:"SERVICE_NAME"`
}

// ProducerConfig enables built-in event sources.
type ProducerConfig struct {
	// RingbufPin is the bpffs path of a pinned BPF_MAP_TYPE_RINGBUF map.
	RingbufPin string `json:"ringbufPin" yaml:"ringbufPin" env:"RINGBUF_PIN"`
}

// LogConfig mirrors log.Config with env bindings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"LEVEL"`
	Format string `json:"format" yaml:"format" env:"FORMAT"`
	Output string `json:"output" yaml:"output" env:"OUTPUT"`
}

// DefaultQueueCapacity bounds queues nobody configured.
const DefaultQueueCapacity = 1 << 16

const (
	ConfigurePolicyFree = "free"
	ConfigurePolicyOnce = "once"
)

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Socket:     DefaultSocketPath("tracebus.sock"),
			GRPCSocket: DefaultSocketPath("tracebus-grpc.sock"),
			SocketMode: 0o666,
		},
		Queue: QueueConfig{
			DefaultCapacity: DefaultQueueCapacity,
			ReapInterval:    Duration(5 * time.Second),
			DefaultMask:     "0xffffffffffffffff",
			ConfigurePolicy: ConfigurePolicyFree,
			MaxDrainBatch:   4096,
			MaxPayloadBytes: 64 << 10,
		},
		Auth: AuthConfig{AllowRoot: true},
		Ledger: LedgerConfig{
			Enabled:      true,
			DataDir:      DefaultDataDir(),
			Fsync:        "interval",
			Retention:    Duration(7 * 24 * time.Hour),
			TrimInterval: Duration(time.Hour),
		},
		Telemetry: TelemetryConfig{ServiceName: "tracebus"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Queue.DefaultCapacity < 0 {
		return fmt.Errorf("queue.defaultCapacity must be >= 0")
	}
	if c.Queue.ReapInterval < 0 {
		return fmt.Errorf("queue.reapInterval must be >= 0")
	}
	if _, err := c.Queue.Mask(); err != nil {
		return err
	}
	switch c.Queue.ConfigurePolicy {
	case "", ConfigurePolicyFree, ConfigurePolicyOnce:
	default:
		return fmt.Errorf("queue.configurePolicy must be %q or %q", ConfigurePolicyFree, ConfigurePolicyOnce)
	}
	if c.Server.Socket == "" && c.Server.HTTPAddr == "" && c.Server.GRPCSocket == "" && c.Server.GRPCAddr == "" {
		return fmt.Errorf("server: no listener configured")
	}
	if c.Ledger.Enabled && c.Ledger.DataDir == "" {
		return fmt.Errorf("ledger.dataDir is required when the ledger is enabled")
	}
	return nil
}

// Mask parses DefaultMask. An empty string means all bits set.
func (q QueueConfig) Mask() (uint64, error) {
	s := strings.TrimSpace(q.DefaultMask)
	if s == "" {
		return ^uint64(0), nil
	}
	m, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("queue.defaultMask: %w", err)
	}
	return m, nil
}
