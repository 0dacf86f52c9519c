package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metar_parser/internal/metar"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", slog.LevelInfo, "metar-service", "prod")

	logger.Debug("hidden")
	logger.Info("decoded", "station", "KJFK")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "decoded", line["msg"])
	assert.Equal(t, "metar-service", line["app"])
	assert.Equal(t, "prod", line["env"])
	assert.Equal(t, "KJFK", line["station"])
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", slog.LevelDebug, "metar-service", "dev")

	logger.Debug("decoded", "station", "KJFK")
	assert.Contains(t, buf.String(), "decoded")
	assert.Contains(t, buf.String(), "KJFK")
}

func TestObserveReport(t *testing.T) {
	m := NewMetricsForTesting()

	m.ObserveReport(metar.Parse("KSFO 28015KT 1/2SM OVC002 12/11 A2998"))
	m.ObserveReport(metar.Parse("GARBAGE TEXT"))
	m.ObserveReport(metar.Parse("KJFK 10SM A3001"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsDecoded.WithLabelValues("LIFR")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReportsDecoded.WithLabelValues("VFR")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FieldsMissing.WithLabelValues("wind")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldsMissing.WithLabelValues("station")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FieldsMissing.WithLabelValues("dewpoint")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldsMissing.WithLabelValues("visibility")))
}
