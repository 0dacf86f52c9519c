package metar

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Normalise upper-cases and trims report text. Normalise is idempotent.
func Normalise(raw string) string {
	return strings.TrimSpace(strings.ToUpper(raw))
}

// Parse decodes a METAR report. Groups are located independently of their
// order; any group that cannot be found is defaulted or left absent and listed
// in the returned report's Missing field. Parse is safe for concurrent use.
func Parse(raw string) WeatherReport {
	text := Normalise(raw)
	tokens := Tokenise(text)

	r := WeatherReport{
		RawText:       text,
		StationID:     UnknownStation,
		Visibility:    Visibility{Miles: DefaultVisibilitySM},
		TemperatureC:  DefaultTemperatureC,
		AltimeterInHg: DefaultAltimeterInHg,
	}

	if station, ok := scanStation(tokens); ok {
		r.StationID = station
	} else {
		r.Missing = append(r.Missing, FieldStation)
	}

	if w, ok := scanWind(tokens); ok {
		r.Wind = &w
	} else {
		r.Missing = append(r.Missing, FieldWind)
	}

	if v, ok := scanVisibility(tokens); ok {
		r.Visibility = v
	} else {
		r.Missing = append(r.Missing, FieldVisibility)
	}

	r.CloudLayers = scanClouds(tokens)

	if t, d, ok := scanTempDew(tokens); ok {
		r.TemperatureC = t
		r.DewpointC = d
		if d == nil {
			r.Missing = append(r.Missing, FieldDewpoint)
		}
	} else {
		r.Missing = append(r.Missing, FieldTemperature, FieldDewpoint)
	}

	if a, ok := scanAltimeter(tokens); ok {
		r.AltimeterInHg = a
	} else {
		r.Missing = append(r.Missing, FieldAltimeter)
	}

	r.CeilingFt = Ceiling(r.CloudLayers)
	r.FlightCategory = Classify(r.Visibility.Miles, r.CeilingFt)
	return r
}

// Ceiling returns the height in feet of the first broken or overcast layer, in
// report order. Vertical visibility, few and scattered layers never form a
// ceiling. Without a qualifying layer the ceiling is UnlimitedCeilingFt.
func Ceiling(layers []CloudLayer) int {
	for _, l := range layers {
		if l.Coverage.IsCeiling() {
			return l.HeightFt()
		}
	}
	return UnlimitedCeilingFt
}

var (
	threeMiles = decimal.NewFromInt(3)
	oneMile    = decimal.NewFromInt(1)
)

// Classify derives the flight category. Rules are applied in order and later
// rules override earlier ones:
//
//  1. VFR
//  2. visibility < 3 SM or ceiling < 1000 ft: IFR
//  3. visibility < 1 SM or ceiling < 500 ft: LIFR
//
// MVFR is never returned by these thresholds.
func Classify(visibility decimal.Decimal, ceilingFt int) FlightCategory {
	category := VFR
	if visibility.LessThan(threeMiles) || ceilingFt < 1000 {
		category = IFR
	}
	if visibility.LessThan(oneMile) || ceilingFt < 500 {
		category = LIFR
	}
	return category
}
