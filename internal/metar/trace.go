package metar

import "strings"

// GroupMatch records the token a field decoder accepted, if any.
type GroupMatch struct {
	Field   Field  `json:"field"`
	Token   string `json:"token,omitempty"`
	Matched bool   `json:"matched"`
}

// FieldClouds names the cloud layer groups in a trace. Clouds are never
// reported as missing since an empty layer list means clear skies.
const FieldClouds Field = "clouds"

// Trace reports, per field, which token of raw was decoded. It is a
// diagnostic companion to Parse and follows the same grammar.
func Trace(raw string) []GroupMatch {
	tokens := Tokenise(Normalise(raw))

	first := func(f Field, accept func(prev, tok string) bool) GroupMatch {
		for i, tok := range tokens {
			prev := ""
			if i > 0 {
				prev = tokens[i-1]
			}
			if accept(prev, tok) {
				return GroupMatch{Field: f, Token: tok, Matched: true}
			}
		}
		return GroupMatch{Field: f}
	}

	station := GroupMatch{Field: FieldStation}
	if s, ok := scanStation(tokens); ok {
		station = GroupMatch{Field: FieldStation, Token: s, Matched: true}
	}

	var clouds []string
	for _, tok := range tokens {
		if _, ok := decodeCloud(tok); ok {
			clouds = append(clouds, tok)
		}
	}

	return []GroupMatch{
		station,
		first(FieldWind, func(_, tok string) bool {
			_, ok := decodeWind(tok)
			return ok
		}),
		first(FieldVisibility, func(prev, tok string) bool {
			_, ok := decodeVisibility(prev, tok)
			return ok
		}),
		{Field: FieldClouds, Token: strings.Join(clouds, " "), Matched: len(clouds) > 0},
		first(FieldTemperature, func(_, tok string) bool {
			_, _, ok := decodeTempDew(tok)
			return ok
		}),
		first(FieldAltimeter, func(_, tok string) bool {
			_, ok := decodeAltimeter(tok)
			return ok
		}),
	}
}
