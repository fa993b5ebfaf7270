package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cswui.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `page: page.html
transport:
  url: ws://localhost:8080/websocket/device
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.Kind != TransportWebsocket {
		t.Fatalf("expected websocket transport, got %q", cfg.Transport.Kind)
	}
	if cfg.Transport.ReconnectInterval.Duration != DefaultReconnectInterval {
		t.Fatalf("unexpected reconnect interval %s", cfg.Transport.ReconnectInterval.Duration)
	}
	if cfg.SnapshotInterval.Duration != DefaultSnapshotInterval {
		t.Fatalf("unexpected snapshot interval %s", cfg.SnapshotInterval.Duration)
	}
	if cfg.DefaultProtocol != "epics" {
		t.Fatalf("unexpected default protocol %q", cfg.DefaultProtocol)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("unexpected log level %q", cfg.Logging.Level)
	}
	if want := filepath.Join(filepath.Dir(path), "page.html"); cfg.Page != want {
		t.Fatalf("expected page %q, got %q", want, cfg.Page)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `page: /srv/www/index.html
output: "-"
snapshot_interval: 250ms
default_protocol: pva
transport:
  kind: mqtt
  reconnect_interval: 1s
  mqtt:
    broker: tcp://broker:1883
    client_id: cswui
    topic_prefix: csw/
    qos: 1
logging:
  level: debug
  format: text
  loki:
    enabled: true
    url: http://loki:3100/loki/api/v1/push
    labels:
      app: cswui
telemetry:
  listen: ":9100"
live_view:
  listen: ":8081"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Page != "/srv/www/index.html" || cfg.Output != "-" {
		t.Fatalf("unexpected paths %q %q", cfg.Page, cfg.Output)
	}
	if cfg.SnapshotInterval.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected snapshot interval %s", cfg.SnapshotInterval.Duration)
	}
	if cfg.Transport.Kind != TransportMQTT || cfg.Transport.MQTT.Broker != "tcp://broker:1883" || cfg.Transport.MQTT.QoS != 1 {
		t.Fatalf("unexpected transport %+v", cfg.Transport)
	}
	if cfg.Transport.ReconnectInterval.Duration != time.Second {
		t.Fatalf("unexpected reconnect interval %s", cfg.Transport.ReconnectInterval.Duration)
	}
	if cfg.Logging.Format != "text" || !cfg.Logging.Loki.Enabled || cfg.Logging.Loki.Labels["app"] != "cswui" {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
	if cfg.Telemetry.Listen != ":9100" || cfg.LiveView.Listen != ":8081" {
		t.Fatalf("unexpected listeners %+v %+v", cfg.Telemetry, cfg.LiveView)
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown key": `transport:
  url: ws://x
colour: blue
`,
		"unknown transport": `transport:
  kind: carrier-pigeon
`,
		"bad qos": `transport:
  kind: mqtt
  mqtt:
    broker: tcp://b:1883
    qos: 3
`,
		"bad duration": `snapshot_interval: soon
transport:
  url: ws://x
`,
		"bad level": `logging:
  level: loud
transport:
  url: ws://x
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(name+".yaml", []byte(content)); err == nil {
				t.Fatalf("expected schema error")
			} else if !strings.Contains(err.Error(), "invalid config") {
				t.Fatalf("expected schema error, got %v", err)
			}
		})
	}
}

func TestParseRejectsIncompleteTransport(t *testing.T) {
	if _, err := Parse("ws.yaml", []byte("page: x.html\n")); err == nil || !strings.Contains(err.Error(), "transport.url") {
		t.Fatalf("expected missing url error, got %v", err)
	}
	if _, err := Parse("mqtt.yaml", []byte("transport:\n  kind: mqtt\n")); err == nil || !strings.Contains(err.Error(), "broker") {
		t.Fatalf("expected missing broker error, got %v", err)
	}
	if _, err := Parse("loki.yaml", []byte("transport:\n  kind: memory\nlogging:\n  loki:\n    enabled: true\n")); err == nil || !strings.Contains(err.Error(), "loki.url") {
		t.Fatalf("expected missing loki url error, got %v", err)
	}
}

func TestMemoryTransportNeedsNoEndpoint(t *testing.T) {
	cfg, err := Parse("memory.yaml", []byte("transport:\n  kind: memory\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Transport.Kind != TransportMemory {
		t.Fatalf("unexpected kind %q", cfg.Transport.Kind)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSourceFilesTracksPage(t *testing.T) {
	path := writeConfig(t, `page: page.html
hot_reload: true
transport:
  kind: memory
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.HotReload {
		t.Fatalf("expected hot reload to be enabled")
	}
	files := SourceFiles(cfg)
	if len(files) != 1 || files[0] != filepath.Join(filepath.Dir(path), "page.html") {
		t.Fatalf("unexpected source files %v", files)
	}

	cfg.Page = "-"
	if files := SourceFiles(cfg); len(files) != 0 {
		t.Fatalf("stdin page must not be tracked, got %v", files)
	}
	if files := SourceFiles(nil); files != nil {
		t.Fatalf("expected nil for nil config, got %v", files)
	}
}
