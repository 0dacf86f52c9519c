package metar

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int { return &v }

func TestParseScenarios(t *testing.T) {
	t.Run("full report with gust", func(t *testing.T) {
		r := Parse("KJFK 121530Z 19012G20KT 10SM FEW030 BKN100 25/18 A2992")

		assert.Equal(t, "KJFK", r.StationID)
		require.NotNil(t, r.Wind)
		assert.Equal(t, 190, r.Wind.Direction.Degrees)
		assert.False(t, r.Wind.Direction.Variable)
		assert.Equal(t, 12, r.Wind.SpeedKt)
		assert.Equal(t, intPtr(20), r.Wind.GustKt)
		assert.True(t, r.Visibility.Miles.Equal(dec("10")))
		assert.Equal(t, []CloudLayer{
			{Coverage: Few, HeightHundreds: 30},
			{Coverage: Broken, HeightHundreds: 100},
		}, r.CloudLayers)
		assert.Equal(t, 10000, r.CeilingFt)
		assert.Equal(t, 25, r.TemperatureC)
		assert.Equal(t, intPtr(18), r.DewpointC)
		assert.True(t, r.AltimeterInHg.Equal(dec("29.92")))
		assert.Equal(t, VFR, r.FlightCategory)
		assert.Empty(t, r.Missing)
	})

	t.Run("low ceiling is LIFR", func(t *testing.T) {
		r := Parse("KORD 1SM BKN003 M05/M10 A2950")

		assert.Equal(t, "KORD", r.StationID)
		assert.True(t, r.Visibility.Miles.Equal(dec("1")))
		assert.Equal(t, 300, r.CeilingFt)
		assert.Equal(t, -5, r.TemperatureC)
		assert.Equal(t, intPtr(-10), r.DewpointC)
		assert.True(t, r.AltimeterInHg.Equal(dec("29.50")))
		assert.Equal(t, LIFR, r.FlightCategory)
		assert.Nil(t, r.Wind)
		assert.Equal(t, []Field{FieldWind}, r.Missing)
	})

	t.Run("garbage input degrades to defaults", func(t *testing.T) {
		r := Parse("GARBAGE TEXT")

		assert.Equal(t, UnknownStation, r.StationID)
		assert.Nil(t, r.Wind)
		assert.True(t, r.Visibility.Miles.Equal(dec("10")))
		assert.NotNil(t, r.CloudLayers)
		assert.Empty(t, r.CloudLayers)
		assert.Equal(t, UnlimitedCeilingFt, r.CeilingFt)
		assert.Equal(t, DefaultTemperatureC, r.TemperatureC)
		assert.Nil(t, r.DewpointC)
		assert.True(t, r.AltimeterInHg.Equal(dec("29.92")))
		assert.Equal(t, VFR, r.FlightCategory)
		assert.Equal(t, []Field{
			FieldStation, FieldWind, FieldVisibility, FieldTemperature, FieldDewpoint, FieldAltimeter,
		}, r.Missing)
	})

	t.Run("overcast below 1000 is IFR", func(t *testing.T) {
		r := Parse("KSEA 3SM OVC008 10/05 A3000")

		assert.True(t, r.Visibility.Miles.Equal(dec("3")))
		assert.Equal(t, 800, r.CeilingFt)
		assert.Equal(t, IFR, r.FlightCategory)
		assert.True(t, r.AltimeterInHg.Equal(dec("30.00")))
	})
}

func TestParseNormalises(t *testing.T) {
	r := Parse("  kbos 22010kt 5sm sct045 18/12 a3012 \n")

	assert.Equal(t, "KBOS 22010KT 5SM SCT045 18/12 A3012", r.RawText)
	assert.Equal(t, "KBOS", r.StationID)
	require.NotNil(t, r.Wind)
	assert.Equal(t, 220, r.Wind.Direction.Degrees)
	assert.Nil(t, r.Wind.GustKt)
}

func TestParseOrderIndependent(t *testing.T) {
	a := Parse("KDEN 27015KT 2SM OVC004 M02/M04 A2980")
	b := Parse("KDEN A2980 M02/M04 OVC004 2SM 27015KT")

	assert.Equal(t, a.StationID, b.StationID)
	assert.Equal(t, a.Wind, b.Wind)
	assert.True(t, a.Visibility.Miles.Equal(b.Visibility.Miles))
	assert.Equal(t, a.CloudLayers, b.CloudLayers)
	assert.Equal(t, a.TemperatureC, b.TemperatureC)
	assert.Equal(t, a.DewpointC, b.DewpointC)
	assert.True(t, a.AltimeterInHg.Equal(b.AltimeterInHg))
	assert.Equal(t, LIFR, a.FlightCategory)
	assert.Equal(t, a.FlightCategory, b.FlightCategory)
}

func TestParseIdempotent(t *testing.T) {
	inputs := []string{
		"KJFK 121530Z 19012G20KT 10SM FEW030 BKN100 25/18 A2992",
		"kord 1sm bkn003 m05/m10 a2950",
		"GARBAGE TEXT",
		"METAR KSFO 121556Z VRB03KT M1/4SM VV002 12/12 A2990 RMK AO2",
		"KPDX 1 1/2SM BR OVC006 08/",
		"",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first := Parse(in)
			second := Parse(first.RawText)
			assert.Equal(t, first, second)
		})
	}
}

func TestParseWindGust(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantDir  WindDirection
		wantSpd  int
		wantGust *int
	}{
		{"no gust", "KLAX 25008KT 10SM", WindDirection{Degrees: 250}, 8, nil},
		{"gust", "KLAX 25018G28KT 10SM", WindDirection{Degrees: 250}, 18, intPtr(28)},
		{"three digit speed and gust", "KMWN 290105G130KT 1/4SM", WindDirection{Degrees: 290}, 105, intPtr(130)},
		{"variable", "KLAX VRB04KT 10SM", WindDirection{Variable: true}, 4, nil},
		{"calm", "KLAX 00000KT 10SM", WindDirection{}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse(tt.input)
			require.NotNil(t, r.Wind)
			assert.Equal(t, tt.wantDir, r.Wind.Direction)
			assert.Equal(t, tt.wantSpd, r.Wind.SpeedKt)
			assert.Equal(t, tt.wantGust, r.Wind.GustKt)
			assert.False(t, r.Defaulted(FieldWind))
		})
	}
}

func TestParseCeilingRules(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantCeiling int
		wantCat     FlightCategory
	}{
		{"no clouds", "KPHX 10SM", 10000, VFR},
		{"few and scattered never ceiling", "KPHX 10SM FEW002 SCT003", 10000, VFR},
		{"vertical visibility never ceiling", "KPHX 10SM VV001", 10000, VFR},
		{"first broken wins, not lowest", "KPHX 10SM OVC020 BKN004", 2000, VFR},
		{"ceiling exactly 1000", "KPHX 10SM BKN010", 1000, VFR},
		{"ceiling 900", "KPHX 10SM BKN009", 900, IFR},
		{"ceiling exactly 500", "KPHX 10SM OVC005", 500, IFR},
		{"ceiling below 500", "KPHX 10SM OVC004", 400, LIFR},
		{"convective suffix", "KPHX 10SM BKN008CB", 800, IFR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse(tt.input)
			assert.Equal(t, tt.wantCeiling, r.CeilingFt)
			assert.Equal(t, tt.wantCat, r.FlightCategory)
		})
	}
}

func TestParseVisibility(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		modifier VisibilityModifier
		wantCat  FlightCategory
	}{
		{"whole miles", "KXYZ 7SM", "7", VisibilityExact, VFR},
		{"two digit miles", "KXYZ 15SM", "15", VisibilityExact, VFR},
		{"fraction", "KXYZ 1/2SM", "0.5", VisibilityExact, LIFR},
		{"less than quarter", "KXYZ M1/4SM", "0.25", VisibilityLessThan, LIFR},
		{"mixed number", "KXYZ 1 1/2SM", "1.5", VisibilityExact, IFR},
		{"greater than", "KXYZ P6SM", "6", VisibilityGreaterThan, VFR},
		{"exactly three", "KXYZ 3SM", "3", VisibilityExact, VFR},
		{"two and three quarters", "KXYZ 2 3/4SM", "2.75", VisibilityExact, IFR},
		{"sixteenths", "KXYZ 3/16SM", "0.1875", VisibilityExact, LIFR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse(tt.input)
			assert.True(t, r.Visibility.Miles.Equal(dec(tt.want)), "got %s", r.Visibility.Miles)
			assert.Equal(t, tt.modifier, r.Visibility.Modifier)
			assert.Equal(t, tt.wantCat, r.FlightCategory)
			assert.False(t, r.Defaulted(FieldVisibility))
		})
	}
}

func TestParseTemperature(t *testing.T) {
	t.Run("negative pair", func(t *testing.T) {
		r := Parse("KXYZ M12/M15")
		assert.Equal(t, -12, r.TemperatureC)
		assert.Equal(t, intPtr(-15), r.DewpointC)
	})

	t.Run("missing dewpoint", func(t *testing.T) {
		r := Parse("KXYZ 08/ A2990")
		assert.Equal(t, 8, r.TemperatureC)
		assert.Nil(t, r.DewpointC)
		assert.True(t, r.Defaulted(FieldDewpoint))
		assert.False(t, r.Defaulted(FieldTemperature))
	})

	t.Run("pair at end of text", func(t *testing.T) {
		r := Parse("KXYZ A2990 21/09")
		assert.Equal(t, 21, r.TemperatureC)
		assert.Equal(t, intPtr(9), r.DewpointC)
	})

	t.Run("pair missing", func(t *testing.T) {
		r := Parse("KXYZ A2990")
		assert.Equal(t, DefaultTemperatureC, r.TemperatureC)
		assert.Nil(t, r.DewpointC)
		assert.True(t, r.Defaulted(FieldTemperature))
	})
}

func TestParseScansRemarks(t *testing.T) {
	t.Run("cloud group after RMK", func(t *testing.T) {
		r := Parse("KXYZ 10SM FEW050 15/10 A3000 RMK BKN004")

		assert.Equal(t, []CloudLayer{
			{Coverage: Few, HeightHundreds: 50},
			{Coverage: Broken, HeightHundreds: 4},
		}, r.CloudLayers)
		assert.Equal(t, 400, r.CeilingFt)
		assert.Equal(t, LIFR, r.FlightCategory)
	})

	t.Run("remark codes ignored", func(t *testing.T) {
		r := Parse("KBOS 27010KT 10SM FEW250 20/10 A3001 RMK AO2 SLP132 T02000100")

		assert.Equal(t, []CloudLayer{{Coverage: Few, HeightHundreds: 250}}, r.CloudLayers)
		assert.Equal(t, 20, r.TemperatureC)
		assert.Equal(t, VFR, r.FlightCategory)
		assert.Empty(t, r.Missing)
	})
}

func TestParseReportPrefix(t *testing.T) {
	r := Parse("METAR COR EGLL 121520Z 24012KT 9999 BKN012 14/09 Q1012=")
	assert.Equal(t, "EGLL", r.StationID)
	assert.Equal(t, 1200, r.CeilingFt)
	// Metric visibility and QNH are not decoded.
	assert.True(t, r.Defaulted(FieldVisibility))
	assert.True(t, r.Defaulted(FieldAltimeter))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		vis     string
		ceiling int
		want    FlightCategory
	}{
		{"10", 10000, VFR},
		{"5", 3000, VFR},
		{"3", 1000, VFR},
		{"2.99", 10000, IFR},
		{"10", 999, IFR},
		{"1", 500, IFR},
		{"0.99", 10000, LIFR},
		{"10", 499, LIFR},
		{"0", 0, LIFR},
	}

	for _, tt := range tests {
		got := Classify(dec(tt.vis), tt.ceiling)
		assert.Equal(t, tt.want, got, "vis=%s ceiling=%d", tt.vis, tt.ceiling)
		assert.NotEqual(t, MVFR, got)
	}
}

func TestParseConcurrent(t *testing.T) {
	want := Parse("KSEA 3SM OVC008 10/05 A3000")

	var wg sync.WaitGroup
	results := make([]WeatherReport, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Parse("KSEA 3SM OVC008 10/05 A3000")
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
