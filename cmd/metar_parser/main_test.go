package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metar_parser/internal/feed"
	"metar_parser/internal/metar"
	"metar_parser/internal/parsers/weather"
	"metar_parser/internal/registry"
	"metar_parser/internal/storage"
)

func testRegistry() *registry.Registry {
	r := registry.New()
	weather.Register(r)
	return r
}

func TestDecodeReports(t *testing.T) {
	reports, st := decodeReports([]string{
		"KSFO 121856Z 28015KT 1/2SM OVC002 12/11 A2998",
		"",
		"KJFK 121551Z 19012KT 10SM FEW030 22/14 A3001",
		"121554Z 10SM",
	})

	require.Len(t, reports, 3)
	assert.Equal(t, 3, st.Reports)
	assert.Equal(t, 1, st.ByCategory[metar.LIFR])
	assert.Equal(t, 2, st.ByCategory[metar.VFR])
	assert.Equal(t, 1, st.Defaulted)
	assert.Equal(t, 1, st.ByField[metar.FieldStation])
	assert.Equal(t, "LIFR=1,VFR=2", formatCounts(st.ByCategory))
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "IFR=1,VFR=3", formatCounts(map[metar.FlightCategory]int{metar.VFR: 3, metar.IFR: 1}))
	assert.Equal(t, "", formatCounts(map[metar.Field]int{}))
}

func TestExtract(t *testing.T) {
	input := strings.Join([]string{
		`{"id":1,"label":"METAR","text":"KSFO 121856Z 28015KT 1/2SM OVC002 12/11 A2998"}`,
		`{"source":{"name":"acars"},"message":{"id":2,"label":"RA","text":"METAR KJFK 121551Z 10SM A3001= METAR KLGA 121551Z 2SM OVC008 A2999="}}`,
		`{"id":3,"label":"RA","text":"FUEL 12.3"}`,
		`not json`,
		``,
	}, "\n")

	t.Run("matched only", func(t *testing.T) {
		st := &Stats{}
		out, err := extract(strings.NewReader(input), testRegistry(), false, st)
		require.NoError(t, err)

		require.Len(t, out, 2)
		assert.Equal(t, 4, st.Lines)
		assert.Equal(t, 1, st.ParsedEnvelope)
		assert.Equal(t, 2, st.ParsedFlat)
		assert.Equal(t, 1, st.SkippedNoText)
		assert.Equal(t, 2, st.Matched)
		assert.Equal(t, 3, st.Reports)

		assert.Equal(t, "acars", out[1].Message.Source)
		res := out[1].Results[0].(*weather.Result)
		assert.Equal(t, "bulletin", res.Parser)
		assert.Len(t, res.Reports, 2)
	})

	t.Run("include all", func(t *testing.T) {
		st := &Stats{}
		out, err := extract(strings.NewReader(input), testRegistry(), true, st)
		require.NoError(t, err)
		assert.Len(t, out, 3)
		assert.Equal(t, 3, st.Emitted)
		assert.Equal(t, 2, st.Matched)
	})
}

func TestArchiveRecords(t *testing.T) {
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := &Stats{}
	out, err := extract(strings.NewReader(
		`{"id":2,"label":"RA","text":"METAR KJFK 121551Z 10SM A3001= METAR KLGA 121551Z 2SM OVC008 A2999="}`),
		testRegistry(), false, st)
	require.NoError(t, err)

	recs := collectRecords(out, time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC))
	require.Len(t, recs, 2)
	assert.Equal(t, "KJFK", recs[0].Station)
	assert.Equal(t, "bulletin", recs[0].Parser)

	require.NoError(t, archiveRecords(context.Background(), db, recs, st))
	assert.Equal(t, 2, st.Archived)

	stored, err := db.Query(context.Background(), storage.QueryParams{Station: "KLGA"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "IFR", stored[0].Category)
	assert.Equal(t, int64(2), stored[0].MessageID)
}

func TestTraceMessage(t *testing.T) {
	reg := testRegistry()

	t.Run("unlabelled follows the fallback route", func(t *testing.T) {
		traces := traceMessage(reg, &feed.Message{Text: "METAR KJFK 121551Z 10SM A3001="})
		require.Len(t, traces, 1)
		assert.Equal(t, "metar", traces[0].ParserName)
		assert.True(t, traces[0].Matched)
	})

	t.Run("unrouted label traces nothing", func(t *testing.T) {
		assert.Empty(t, traceMessage(reg, &feed.Message{Label: "H1", Text: "METAR KJFK 10SM="}))
	})

	t.Run("label filters parsers", func(t *testing.T) {
		traces := traceMessage(reg, &feed.Message{Label: "RA", Text: "METAR KJFK 10SM="})
		require.Len(t, traces, 1)
		assert.Equal(t, "bulletin", traces[0].ParserName)
		assert.True(t, traces[0].Matched)
	})
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("METAR_TEST_VALUE", "set")
	assert.Equal(t, "set", envOrDefault("METAR_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", envOrDefault("METAR_TEST_UNSET", "fallback"))
}
