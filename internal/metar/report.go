// Package metar decodes METAR surface weather reports into typed values and
// derives the flight category from visibility and ceiling.
//
// Decoding never fails. Each field degrades to a documented default or to an
// absent marker when its group is not found, and the field is then listed in
// WeatherReport.Missing so callers can tell real values from defaults.
//
// A temperature group without a dewpoint ("08/") still yields the
// temperature; only the dewpoint is then reported missing.
package metar

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// UnknownStation is the station identifier used when no station group is found.
const UnknownStation = "unknown"

// UnlimitedCeilingFt is the ceiling assumed when no broken or overcast layer is reported.
const UnlimitedCeilingFt = 10000

// Defaults applied when a group is missing.
var (
	DefaultVisibilitySM  = decimal.NewFromInt(10)
	DefaultAltimeterInHg = decimal.New(2992, -2)
)

// DefaultTemperatureC is the temperature assumed when no temperature group is found.
const DefaultTemperatureC = 15

// Coverage is the sky cover code of a cloud layer.
type Coverage int

const (
	Few Coverage = iota + 1
	Scattered
	Broken
	Overcast
	VerticalVisibility
)

var coverageCodes = map[Coverage]string{
	Few:                "FEW",
	Scattered:          "SCT",
	Broken:             "BKN",
	Overcast:           "OVC",
	VerticalVisibility: "VV",
}

// String returns the METAR code for the coverage (FEW, SCT, BKN, OVC, VV).
func (c Coverage) String() string {
	if s, ok := coverageCodes[c]; ok {
		return s
	}
	return fmt.Sprintf("Coverage(%d)", int(c))
}

// MarshalJSON encodes the coverage as its METAR code.
func (c Coverage) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a METAR coverage code.
func (c *Coverage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range coverageCodes {
		if v == s {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown cloud coverage %q", s)
}

// IsCeiling reports whether a layer with this coverage can form a ceiling.
func (c Coverage) IsCeiling() bool {
	return c == Broken || c == Overcast
}

// CloudLayer is one sky condition group.
type CloudLayer struct {
	Coverage Coverage `json:"coverage"`
	// HeightHundreds is the raw 3-digit height group, in hundreds of feet.
	HeightHundreds int `json:"height_hundreds"`
	// Convective holds a CB or TCU suffix when present.
	Convective string `json:"convective,omitempty"`
}

// HeightFt returns the layer base in feet.
func (l CloudLayer) HeightFt() int {
	return l.HeightHundreds * 100
}

func (l CloudLayer) String() string {
	return fmt.Sprintf("%s%03d%s", l.Coverage, l.HeightHundreds, l.Convective)
}

// WindDirection is either a true bearing in degrees or the VRB marker.
type WindDirection struct {
	Degrees  int  `json:"degrees"`
	Variable bool `json:"variable,omitempty"`
}

func (d WindDirection) String() string {
	if d.Variable {
		return "VRB"
	}
	return fmt.Sprintf("%03d", d.Degrees)
}

// Wind is a decoded wind group.
type Wind struct {
	Direction WindDirection `json:"direction"`
	SpeedKt   int           `json:"speed_kt"`
	GustKt    *int          `json:"gust_kt,omitempty"`
}

// VisibilityModifier qualifies a visibility value.
type VisibilityModifier string

const (
	VisibilityExact       VisibilityModifier = ""
	VisibilityLessThan    VisibilityModifier = "less_than"
	VisibilityGreaterThan VisibilityModifier = "greater_than"
)

// Visibility is the prevailing visibility in statute miles.
type Visibility struct {
	Miles    decimal.Decimal    `json:"miles"`
	Modifier VisibilityModifier `json:"modifier,omitempty"`
}

// FlightCategory summarises how restrictive the conditions are for visual flight.
type FlightCategory string

const (
	VFR  FlightCategory = "VFR"
	MVFR FlightCategory = "MVFR"
	IFR  FlightCategory = "IFR"
	LIFR FlightCategory = "LIFR"
)

// Colour returns the conventional display colour for the category.
func (c FlightCategory) Colour() string {
	switch c {
	case VFR:
		return "green"
	case MVFR:
		return "blue"
	case IFR:
		return "amber"
	case LIFR:
		return "red"
	}
	return ""
}

// ParseFlightCategory resolves a category name, case-sensitively.
func ParseFlightCategory(s string) (FlightCategory, bool) {
	switch c := FlightCategory(s); c {
	case VFR, MVFR, IFR, LIFR:
		return c, true
	}
	return "", false
}

// Field names a decoded report field.
type Field string

const (
	FieldStation     Field = "station"
	FieldWind        Field = "wind"
	FieldVisibility  Field = "visibility"
	FieldTemperature Field = "temperature"
	FieldDewpoint    Field = "dewpoint"
	FieldAltimeter   Field = "altimeter"
)

// WeatherReport is a decoded METAR. A report is built once by Parse and is
// not modified afterwards.
type WeatherReport struct {
	StationID      string          `json:"station_id"`
	Wind           *Wind           `json:"wind,omitempty"`
	Visibility     Visibility      `json:"visibility"`
	CloudLayers    []CloudLayer    `json:"cloud_layers"`
	CeilingFt      int             `json:"ceiling_ft"`
	TemperatureC   int             `json:"temperature_c"`
	DewpointC      *int            `json:"dewpoint_c,omitempty"`
	AltimeterInHg  decimal.Decimal `json:"altimeter_inhg"`
	FlightCategory FlightCategory  `json:"flight_category"`
	RawText        string          `json:"raw_text"`

	// Missing lists fields whose group was not found, in field order.
	Missing []Field `json:"missing,omitempty"`
}

// Defaulted reports whether f was absent from the input.
func (r WeatherReport) Defaulted(f Field) bool {
	for _, m := range r.Missing {
		if m == f {
			return true
		}
	}
	return false
}

// MissingNames returns Missing as plain strings.
func (r WeatherReport) MissingNames() []string {
	out := make([]string, len(r.Missing))
	for i, f := range r.Missing {
		out[i] = string(f)
	}
	return out
}
