package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// TransportKind selects the shared transport implementation.
type TransportKind string

const (
	// TransportWebsocket dials a websocket endpoint.
	TransportWebsocket TransportKind = "websocket"
	// TransportMQTT subscribes through an MQTT broker.
	TransportMQTT TransportKind = "mqtt"
	// TransportMemory keeps everything in process. Useful for dry runs.
	TransportMemory TransportKind = "memory"
)

// MQTTConfig describes the broker connection of the MQTT transport.
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id,omitempty"`
	Username       string   `yaml:"username,omitempty"`
	Password       string   `yaml:"password,omitempty"`
	TopicPrefix    string   `yaml:"topic_prefix,omitempty"`
	QoS            byte     `yaml:"qos,omitempty"`
	ConnectTimeout Duration `yaml:"connect_timeout,omitempty"`
}

// TransportConfig configures the transport every field shares.
type TransportConfig struct {
	Kind              TransportKind `yaml:"kind"`
	URL               string        `yaml:"url,omitempty"`
	ReconnectInterval Duration      `yaml:"reconnect_interval,omitempty"`
	ReadLimit         int64         `yaml:"read_limit,omitempty"`
	QueueSize         int           `yaml:"queue_size,omitempty"`
	MQTT              MQTTConfig    `yaml:"mqtt,omitempty"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures the Prometheus endpoint.
type TelemetryConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// LiveViewConfig configures the HTTP view of the rendered page.
type LiveViewConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// Config is the root configuration structure.
type Config struct {
	Page             string          `yaml:"page"`
	Output           string          `yaml:"output,omitempty"`
	SnapshotInterval Duration        `yaml:"snapshot_interval,omitempty"`
	DefaultProtocol  string          `yaml:"default_protocol,omitempty"`
	HotReload        bool            `yaml:"hot_reload,omitempty"`
	Transport        TransportConfig `yaml:"transport"`
	Logging          LoggingConfig   `yaml:"logging"`
	Telemetry        TelemetryConfig `yaml:"telemetry"`
	LiveView         LiveViewConfig  `yaml:"live_view"`
}

// Defaults applied by Load when a setting is absent.
const (
	DefaultSnapshotInterval  = 5 * time.Second
	DefaultReconnectInterval = 2 * time.Second
	DefaultProtocol          = "epics"
)

// Load reads, validates and decodes the configuration file from disk.
// Relative page and output paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(path, raw)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	cfg.Page = resolve(base, cfg.Page)
	cfg.Output = resolve(base, cfg.Output)
	return cfg, nil
}

// Parse validates raw YAML against the schema and decodes it. name is only
// used in error messages.
func Parse(name string, raw []byte) (*Config, error) {
	if err := validateSchema(name, raw); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SnapshotInterval.Duration <= 0 {
		c.SnapshotInterval.Duration = DefaultSnapshotInterval
	}
	if strings.TrimSpace(c.DefaultProtocol) == "" {
		c.DefaultProtocol = DefaultProtocol
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportWebsocket
	}
	if c.Transport.ReconnectInterval.Duration <= 0 {
		c.Transport.ReconnectInterval.Duration = DefaultReconnectInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportWebsocket:
		if strings.TrimSpace(c.Transport.URL) == "" {
			return errors.New("transport.url is required for the websocket transport")
		}
	case TransportMQTT:
		if strings.TrimSpace(c.Transport.MQTT.Broker) == "" {
			return errors.New("transport.mqtt.broker is required for the mqtt transport")
		}
	case TransportMemory:
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if c.Logging.Loki.Enabled && strings.TrimSpace(c.Logging.Loki.URL) == "" {
		return errors.New("logging.loki.url is required when loki is enabled")
	}
	return nil
}

func resolve(base, path string) string {
	if path == "" || path == "-" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// SourceFiles lists the files besides the configuration itself that a
// running instance depends on. A page read from stdin is not listed.
func SourceFiles(cfg *Config) []string {
	if cfg == nil || cfg.Page == "" || cfg.Page == "-" {
		return nil
	}
	abs, err := filepath.Abs(cfg.Page)
	if err != nil {
		return []string{cfg.Page}
	}
	return []string{abs}
}
