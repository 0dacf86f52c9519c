package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metar_parser/internal/feed"
	"metar_parser/internal/metar"
	"metar_parser/internal/registry"
)

func TestReportParser(t *testing.T) {
	p := &ReportParser{}

	res := p.Parse(&feed.Message{
		ID:        42,
		Label:     "METAR",
		Source:    "awc",
		Timestamp: "2024-01-15T12:00:00Z",
		Text:      "KSFO 121856Z 28015KT 1/2SM OVC002 12/11 A2998",
	})
	require.NotNil(t, res)

	r := res.(*Result)
	assert.Equal(t, "metar", r.Type())
	assert.Equal(t, int64(42), r.MessageID())
	assert.Equal(t, "awc", r.Source)
	require.Len(t, r.Reports, 1)
	assert.Equal(t, "KSFO", r.Reports[0].StationID)
	assert.Equal(t, metar.LIFR, r.Reports[0].FlightCategory)

	assert.Nil(t, p.Parse(&feed.Message{Label: "METAR", Text: "   "}))
}

func TestReportParserStationHint(t *testing.T) {
	p := &ReportParser{}

	tests := []struct {
		name        string
		hint        string
		wantStation string
		wantMissing bool
	}{
		{"hint used", "kbos", "KBOS", false},
		{"no hint", "", metar.UnknownStation, true},
		{"bad hint", "BOS1", metar.UnknownStation, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Parse(&feed.Message{Station: tt.hint, Text: "121554Z 10SM A3001 15/10 VRB03KT"})
			require.NotNil(t, res)
			r := res.(*Result).Reports[0]
			assert.Equal(t, tt.wantStation, r.StationID)
			assert.Equal(t, tt.wantMissing, r.Defaulted(metar.FieldStation))
		})
	}
}

func TestSplitBulletin(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "two reports",
			input: "/WX REQ\nMETAR EGLL 121550Z 24010KT 9999 BKN012 10/08 Q1012=\nSPECI KJFK 121600Z 19012KT 2SM OVC008 A2992=",
			want: []string{
				"METAR EGLL 121550Z 24010KT 9999 BKN012 10/08 Q1012=",
				"SPECI KJFK 121600Z 19012KT 2SM OVC008 A2992=",
			},
		},
		{
			name:  "no terminator",
			input: "metar kord 121551z 3sm br ovc009 METAR KMDW 121551Z 10SM",
			want:  []string{"METAR KORD 121551Z 3SM BR OVC009", "METAR KMDW 121551Z 10SM"},
		},
		{
			name:  "text after terminator ignored",
			input: "METAR KSEA 10SM= END OF DATA",
			want:  []string{"METAR KSEA 10SM="},
		},
		{
			name:  "no keyword",
			input: "KJFK 10SM A2992",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitBulletin(tt.input))
		})
	}
}

func TestBulletinParser(t *testing.T) {
	p := &BulletinParser{}

	t.Run("quick check", func(t *testing.T) {
		assert.True(t, p.QuickCheck("REQ metar KJFK"))
		assert.False(t, p.QuickCheck("TAF KJFK 121130Z"))
	})

	t.Run("multiple reports", func(t *testing.T) {
		res := p.Parse(&feed.Message{
			ID:    7,
			Label: "RA",
			Text:  "WX RESPONSE\nMETAR KJFK 121551Z 19012KT 10SM FEW030 22/14 A3001=\nMETAR KLGA 121551Z 20010KT 1/2SM OVC003 18/17 A2999=",
		})
		require.NotNil(t, res)

		r := res.(*Result)
		assert.Equal(t, "bulletin", r.Parser)
		require.Len(t, r.Reports, 2)
		assert.Equal(t, "KJFK", r.Reports[0].StationID)
		assert.Equal(t, metar.VFR, r.Reports[0].FlightCategory)
		assert.Equal(t, "KLGA", r.Reports[1].StationID)
		assert.Equal(t, metar.LIFR, r.Reports[1].FlightCategory)
	})

	t.Run("keyword without station", func(t *testing.T) {
		assert.Nil(t, p.Parse(&feed.Message{Label: "RA", Text: "NO METAR AVAILABLE"}))
	})
}

func TestParseWithTrace(t *testing.T) {
	t.Run("bulletin", func(t *testing.T) {
		trace := (&BulletinParser{}).ParseWithTrace(&feed.Message{
			Text: "METAR KJFK 121551Z 19012KT 10SM A3001=",
		})
		require.NotNil(t, trace.QuickCheck)
		assert.True(t, trace.QuickCheck.Passed)
		assert.True(t, trace.Matched)
		require.Len(t, trace.Extractors, 6)
		assert.Equal(t, "station", trace.Extractors[0].Name)
		assert.Equal(t, "KJFK", trace.Extractors[0].Value)
		assert.Equal(t, "wind", trace.Extractors[1].Name)
		assert.Equal(t, "19012KT", trace.Extractors[1].Value)
	})

	t.Run("quick check fails", func(t *testing.T) {
		trace := (&BulletinParser{}).ParseWithTrace(&feed.Message{Text: "HELLO"})
		assert.False(t, trace.QuickCheck.Passed)
		assert.False(t, trace.Matched)
		assert.Empty(t, trace.Extractors)
	})

	t.Run("report", func(t *testing.T) {
		trace := (&ReportParser{}).ParseWithTrace(&feed.Message{Text: "GARBAGE TEXT"})
		assert.True(t, trace.Matched)
		require.Len(t, trace.Extractors, 6)
		assert.False(t, trace.Extractors[0].Matched)
	})
}

func TestRegisterRoutes(t *testing.T) {
	r := registry.New()
	Register(r)
	text := "KJFK 121551Z 19012KT 10SM A3001"

	tests := []struct {
		label string
		want  string
	}{
		{"", "metar"},
		{"METAR", "metar"},
		{"speci", "metar"},
		{"RA", ""},
		{"H1", ""},
	}

	for _, tt := range tests {
		t.Run("label "+tt.label, func(t *testing.T) {
			results := r.Dispatch(&feed.Message{Label: tt.label, Text: text})
			if tt.want == "" {
				assert.Empty(t, results)
				return
			}
			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].(*Result).Parser)
		})
	}

	t.Run("bulletin label", func(t *testing.T) {
		results := r.Dispatch(&feed.Message{Label: "RA", Text: "METAR " + text + "="})
		require.Len(t, results, 1)
		assert.Equal(t, "bulletin", results[0].(*Result).Parser)
	})

	assert.Equal(t, 2, r.ParserCount())
}
