package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// BridgeConfiguration controls the status bridge subscriber sink
type BridgeConfiguration struct {
	BufferSize int `toml:"buffer_size"` // Channel sink capacity; full sinks drop events
}

// WatchConfiguration controls the upstream connectivity watcher (the producer)
type WatchConfiguration struct {
	Enabled          bool   `toml:"enabled"`
	Target           string `toml:"target"`             // gRPC target of the replication peer
	HealthService    string `toml:"health_service"`     // Service name passed to grpc.health.v1
	HealthIntervalMS int    `toml:"health_interval_ms"` // Health probe interval while connected
	HealthTimeoutMS  int    `toml:"health_timeout_ms"`  // Timeout for a single health probe
}

// SinkConfiguration describes one external destination for relayed status records
type SinkConfiguration struct {
	Name    string   `toml:"name"`
	Type    string   `toml:"type"`   // "nats", "kafka" or "log"
	Format  string   `toml:"format"` // "msgpack" or "json"
	NatsURL string   `toml:"nats_url"`
	Brokers []string `toml:"brokers"`
}

// PublisherConfiguration controls the relay from the bridge to external sinks
type PublisherConfiguration struct {
	TopicPrefix     string              `toml:"topic_prefix"`
	FilterTokens    []string            `toml:"filter_tokens"` // Glob patterns; empty = all tokens
	RetryInitialMS  int                 `toml:"retry_initial_ms"`
	RetryMaxMS      int                 `toml:"retry_max_ms"`
	RetryMultiplier float64             `toml:"retry_multiplier"`
	MaxRetries      int                 `toml:"max_retries"`
	Sinks           []SinkConfiguration `toml:"sinks"`
}

// AdminConfiguration for the admin HTTP server
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID uint64 `toml:"node_id"`

	Bridge     BridgeConfiguration     `toml:"bridge"`
	Watch      WatchConfiguration      `toml:"watch"`
	Publisher  PublisherConfiguration  `toml:"publisher"`
	Admin      AdminConfiguration      `toml:"admin"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	TargetFlag     = flag.String("target", "", "Upstream gRPC target (overrides config)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin HTTP port (overrides config)")
)

// Default returns the built-in configuration
func Default() *Configuration {
	return &Configuration{
		NodeID: 0, // Auto-generate

		Bridge: BridgeConfiguration{
			BufferSize: 64,
		},

		Watch: WatchConfiguration{
			Enabled:          true,
			Target:           "localhost:8080",
			HealthIntervalMS: 2000,
			HealthTimeoutMS:  1000,
		},

		Publisher: PublisherConfiguration{
			TopicPrefix:     "replication.status",
			RetryInitialMS:  100,
			RetryMaxMS:      30000,
			RetryMultiplier: 2.0,
			MaxRetries:      10,
			Sinks: []SinkConfiguration{
				{Name: "log", Type: "log", Format: "json"},
			},
		},

		Admin: AdminConfiguration{
			Enabled:     true,
			BindAddress: "0.0.0.0",
			Port:        9191,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},
	}
}

// Config is the active configuration
var Config = Default()

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *TargetFlag != "" {
		Config.Watch.Target = *TargetFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}

	// Auto-generate node ID if not set
	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("statusbridge")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Bridge.BufferSize < 1 {
		return fmt.Errorf("bridge buffer size must be >= 1")
	}

	if Config.Watch.Enabled {
		if Config.Watch.Target == "" {
			return fmt.Errorf("watch target is required when watch is enabled")
		}
		if Config.Watch.HealthIntervalMS < 1 {
			return fmt.Errorf("watch health interval must be >= 1ms")
		}
		if Config.Watch.HealthTimeoutMS < 1 {
			return fmt.Errorf("watch health timeout must be >= 1ms")
		}
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	// Validate publisher configuration
	if Config.Publisher.RetryInitialMS < 0 {
		return fmt.Errorf("publisher retry initial must be >= 0")
	}

	if Config.Publisher.RetryMaxMS < Config.Publisher.RetryInitialMS {
		return fmt.Errorf("publisher retry max must be >= retry initial")
	}

	if Config.Publisher.MaxRetries < 0 {
		return fmt.Errorf("publisher max retries must be >= 0")
	}

	validTypes := map[string]bool{"nats": true, "kafka": true, "log": true}
	validFormats := map[string]bool{"msgpack": true, "json": true}
	seen := make(map[string]bool, len(Config.Publisher.Sinks))

	for _, sink := range Config.Publisher.Sinks {
		if sink.Name == "" {
			return fmt.Errorf("sink name is required")
		}
		if seen[sink.Name] {
			return fmt.Errorf("duplicate sink name: %s", sink.Name)
		}
		seen[sink.Name] = true

		if !validTypes[sink.Type] {
			return fmt.Errorf("invalid sink type for %s: %s", sink.Name, sink.Type)
		}
		if !validFormats[sink.Format] {
			return fmt.Errorf("invalid sink format for %s: %s", sink.Name, sink.Format)
		}
		if sink.Type == "nats" && sink.NatsURL == "" {
			return fmt.Errorf("sink %s: nats sink requires nats_url", sink.Name)
		}
		if sink.Type == "kafka" && len(sink.Brokers) == 0 {
			return fmt.Errorf("sink %s: kafka sink requires brokers", sink.Name)
		}
	}

	return nil
}
