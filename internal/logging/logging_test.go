package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/cswui/config"
)

type pushed struct {
	labels model.LabelSet
	line   string
}

func capturingLoki(entries *[]pushed) lokiFactory {
	return func(cfg config.LokiConfig) (zerolog.LevelWriter, func(), error) {
		w := &lokiWriter{
			labels: lokiLabels(cfg.Labels),
			push: func(ls model.LabelSet, _ time.Time, line string) error {
				*entries = append(*entries, pushed{labels: ls, line: line})
				return nil
			},
		}
		return w, func() {}, nil
	}
}

func TestSetupJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := setup(config.LoggingConfig{Level: "warn"}, &buf, newLokiWriter)
	require.NoError(t, err)
	defer cleanup()

	logger.Info().Msg("hidden")
	logger.Warn().Str("topic", "epics://foo").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "epics://foo", entry["topic"])
	require.Contains(t, entry, "time")
}

func TestSetupTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := setup(config.LoggingConfig{Format: "text"}, &buf, newLokiWriter)
	require.NoError(t, err)
	logger.Info().Msg("field bound")
	require.Contains(t, buf.String(), "field bound")
	require.NotContains(t, buf.String(), `"message"`)
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, _, err := setup(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}, newLokiWriter)
	require.Error(t, err)
}

func TestSetupLokiRequiresURL(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Loki: config.LokiConfig{Enabled: true}})
	require.Error(t, err)
}

func TestLokiWriterLabelsLevel(t *testing.T) {
	var entries []pushed
	cfg := config.LoggingConfig{Level: "debug", Loki: config.LokiConfig{Enabled: true, URL: "http://loki", Labels: map[string]string{"app": "cswui-test", "bad-label": "x"}}}
	logger, _, err := setup(cfg, &bytes.Buffer{}, capturingLoki(&entries))
	require.NoError(t, err)

	logger.Debug().Msg("subscribe")
	logger.Error().Err(errors.New("boom")).Msg("dial failed")

	require.Len(t, entries, 2)
	require.Equal(t, model.LabelValue("debug"), entries[0].labels["level"])
	require.Equal(t, model.LabelValue("error"), entries[1].labels["level"])
	require.Equal(t, model.LabelValue("cswui-test"), entries[1].labels["app"])
	require.NotContains(t, entries[1].labels, model.LabelName("bad-label"))
	require.Contains(t, entries[1].line, "dial failed")
}

func TestLokiLabelsDefault(t *testing.T) {
	require.Equal(t, model.LabelSet{"app": "cswui"}, lokiLabels(nil))
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(zerolog.New(&buf), "transport")
	logger.Info().Msg("x")
	require.Contains(t, buf.String(), `"component":"transport"`)
}
