package metar

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Each group decoder checks one whitespace-delimited token against a fixed
// grammar. They never backtrack and never look past the token they are given,
// except visibility, which may join a preceding whole-number token.

// reportPrefixes may precede the station identifier.
var reportPrefixes = map[string]bool{
	"METAR": true,
	"SPECI": true,
	"COR":   true,
}

// Tokenise splits normalised report text into groups. Trailing "=" end-of-report
// markers are dropped. Remarks are kept: a cloud group after RMK still counts.
func Tokenise(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimRight(f, "=")
		if f == "" {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isLetters(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// atoi parses a string already validated by isDigits.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// scanStation returns the leading 4-letter station identifier.
func scanStation(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if reportPrefixes[tok] {
			continue
		}
		if len(tok) == 4 && isLetters(tok) {
			return tok, true
		}
		return "", false
	}
	return "", false
}

// decodeWind decodes dddss(s)[Ggg(g)]KT or VRBss(s)[Ggg(g)]KT.
func decodeWind(tok string) (Wind, bool) {
	body, ok := strings.CutSuffix(tok, "KT")
	if !ok || len(body) < 5 {
		return Wind{}, false
	}

	var w Wind
	dir := body[:3]
	switch {
	case dir == "VRB":
		w.Direction.Variable = true
	case isDigits(dir):
		w.Direction.Degrees = atoi(dir)
		if w.Direction.Degrees > 360 {
			return Wind{}, false
		}
	default:
		return Wind{}, false
	}

	speed, gust, hasGust := strings.Cut(body[3:], "G")
	if len(speed) < 2 || len(speed) > 3 || !isDigits(speed) {
		return Wind{}, false
	}
	w.SpeedKt = atoi(speed)

	if hasGust {
		if len(gust) < 2 || len(gust) > 3 || !isDigits(gust) {
			return Wind{}, false
		}
		g := atoi(gust)
		w.GustKt = &g
	}
	return w, true
}

func scanWind(tokens []string) (Wind, bool) {
	for _, tok := range tokens {
		if w, ok := decodeWind(tok); ok {
			return w, true
		}
	}
	return Wind{}, false
}

// decodeMiles evaluates "d", "dd" or a "n/d" fraction with 1-2 digit parts.
func decodeMiles(s string) (decimal.Decimal, bool) {
	num, den, isFrac := strings.Cut(s, "/")
	if !isFrac {
		if len(num) > 2 || !isDigits(num) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromInt(int64(atoi(num))), true
	}
	if len(num) > 2 || len(den) > 2 || !isDigits(num) || !isDigits(den) {
		return decimal.Decimal{}, false
	}
	d := atoi(den)
	if d == 0 {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromInt(int64(atoi(num))).Div(decimal.NewFromInt(int64(d))), true
}

// decodeVisibility decodes [M|P]<miles>SM. prev is the preceding token, used
// for mixed numbers such as "1 1/2SM".
func decodeVisibility(prev, tok string) (Visibility, bool) {
	body, ok := strings.CutSuffix(tok, "SM")
	if !ok || body == "" {
		return Visibility{}, false
	}

	var v Visibility
	switch body[0] {
	case 'M':
		v.Modifier = VisibilityLessThan
		body = body[1:]
	case 'P':
		v.Modifier = VisibilityGreaterThan
		body = body[1:]
	}

	miles, ok := decodeMiles(body)
	if !ok {
		return Visibility{}, false
	}
	if v.Modifier == VisibilityExact && strings.Contains(body, "/") && len(prev) == 1 && isDigits(prev) {
		miles = miles.Add(decimal.NewFromInt(int64(atoi(prev))))
	}
	v.Miles = miles
	return v, true
}

func scanVisibility(tokens []string) (Visibility, bool) {
	for i, tok := range tokens {
		prev := ""
		if i > 0 {
			prev = tokens[i-1]
		}
		if v, ok := decodeVisibility(prev, tok); ok {
			return v, true
		}
	}
	return Visibility{}, false
}

var coverageByCode = map[string]Coverage{
	"FEW": Few,
	"SCT": Scattered,
	"BKN": Broken,
	"OVC": Overcast,
	"VV":  VerticalVisibility,
}

// decodeCloud decodes FEW|SCT|BKN|OVC|VV followed by a 3-digit height and an
// optional CB or TCU suffix.
func decodeCloud(tok string) (CloudLayer, bool) {
	code := tok
	if len(code) > 3 {
		code = code[:3]
	}
	cov, ok := coverageByCode[code]
	if !ok {
		code = tok[:min(2, len(tok))]
		if cov, ok = coverageByCode[code]; !ok {
			return CloudLayer{}, false
		}
	}

	rest := tok[len(code):]
	if len(rest) < 3 || !isDigits(rest[:3]) {
		return CloudLayer{}, false
	}
	layer := CloudLayer{Coverage: cov, HeightHundreds: atoi(rest[:3])}

	switch suffix := rest[3:]; suffix {
	case "":
	case "CB", "TCU":
		layer.Convective = suffix
	default:
		return CloudLayer{}, false
	}
	return layer, true
}

// scanClouds returns every cloud group in appearance order.
func scanClouds(tokens []string) []CloudLayer {
	layers := []CloudLayer{}
	for _, tok := range tokens {
		if l, ok := decodeCloud(tok); ok {
			layers = append(layers, l)
		}
	}
	return layers
}

// decodeTemp decodes M?dd, where M marks a negative value.
func decodeTemp(s string) (int, bool) {
	neg := strings.HasPrefix(s, "M")
	s = strings.TrimPrefix(s, "M")
	if len(s) != 2 || !isDigits(s) {
		return 0, false
	}
	v := atoi(s)
	if neg {
		v = -v
	}
	return v, true
}

// decodeTempDew decodes M?dd/M?dd. A bare "M?dd/" yields a temperature with
// no dewpoint.
func decodeTempDew(tok string) (temp int, dew *int, ok bool) {
	t, d, found := strings.Cut(tok, "/")
	if !found {
		return 0, nil, false
	}
	if temp, ok = decodeTemp(t); !ok {
		return 0, nil, false
	}
	if d == "" {
		return temp, nil, true
	}
	dv, ok := decodeTemp(d)
	if !ok {
		return 0, nil, false
	}
	return temp, &dv, true
}

func scanTempDew(tokens []string) (int, *int, bool) {
	for _, tok := range tokens {
		if t, d, ok := decodeTempDew(tok); ok {
			return t, d, true
		}
	}
	return 0, nil, false
}

// decodeAltimeter decodes Adddd into inches of mercury.
func decodeAltimeter(tok string) (decimal.Decimal, bool) {
	if len(tok) != 5 || tok[0] != 'A' || !isDigits(tok[1:]) {
		return decimal.Decimal{}, false
	}
	return decimal.New(int64(atoi(tok[1:])), -2), true
}

func scanAltimeter(tokens []string) (decimal.Decimal, bool) {
	for _, tok := range tokens {
		if a, ok := decodeAltimeter(tok); ok {
			return a, true
		}
	}
	return decimal.Decimal{}, false
}
