// Package weather parses METAR and SPECI reports from feed messages.
// Plain report feeds are labelled METAR/SPECI; ACARS uplinks carrying weather
// (labels RA, C1 and friends) hold free text with one or more embedded reports.
package weather

import (
	"strconv"
	"strings"

	"metar_parser/internal/feed"
	"metar_parser/internal/metar"
	"metar_parser/internal/registry"
)

// Result represents the reports decoded from one message.
type Result struct {
	MsgID     int64                 `json:"message_id"`
	Timestamp string                `json:"timestamp,omitempty"`
	Source    string                `json:"source,omitempty"`
	Parser    string                `json:"parser"`
	Reports   []metar.WeatherReport `json:"reports"`
}

func (r *Result) Type() string     { return "metar" }
func (r *Result) MessageID() int64 { return r.MsgID }

// ReportParser treats the whole message text as a single report.
type ReportParser struct{}

// BulletinParser extracts every METAR/SPECI keyword report from free text.
type BulletinParser struct{}

func init() {
	Register(registry.Default())
}

// Register adds the weather parsers to r. ReportParser is also the fallback
// for unlabelled messages; other labels carry free text that is not a report.
func Register(r *registry.Registry) {
	report := &ReportParser{}
	r.Register(report)
	r.Register(&BulletinParser{})
	r.RegisterFallback(report, "")
}

func (p *ReportParser) Name() string     { return "metar" }
func (p *ReportParser) Labels() []string { return []string{"METAR", "SPECI"} }
func (p *ReportParser) Priority() int    { return 10 }

// QuickCheck accepts any non-blank text; the decoder degrades gracefully.
func (p *ReportParser) QuickCheck(text string) bool {
	return strings.TrimSpace(text) != ""
}

// Parse decodes the whole message text as one report.
func (p *ReportParser) Parse(msg *feed.Message) registry.Result {
	if !p.QuickCheck(msg.Text) {
		return nil
	}

	report := metar.Parse(msg.Text)
	if report.StationID == metar.UnknownStation && msg.Station != "" {
		report = withStationHint(report, msg.Station)
	}

	return &Result{
		MsgID:     int64(msg.ID),
		Timestamp: msg.Timestamp,
		Source:    msg.Source,
		Parser:    p.Name(),
		Reports:   []metar.WeatherReport{report},
	}
}

// withStationHint fills an unknown station from the feed's station metadata.
// The hint must itself look like an ICAO identifier.
func withStationHint(r metar.WeatherReport, hint string) metar.WeatherReport {
	hint = metar.Normalise(hint)
	if len(hint) != 4 || strings.Trim(hint, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
		return r
	}

	r.StationID = hint
	missing := make([]metar.Field, 0, len(r.Missing))
	for _, f := range r.Missing {
		if f != metar.FieldStation {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		missing = nil
	}
	r.Missing = missing
	return r
}

func (p *BulletinParser) Name() string { return "bulletin" }
func (p *BulletinParser) Labels() []string {
	return []string{"RA", "C1", "21", "H1", "3W", "27", "31", "34", "3T", "23"}
}
func (p *BulletinParser) Priority() int { return 50 }

// QuickCheck looks for a report keyword.
func (p *BulletinParser) QuickCheck(text string) bool {
	upper := strings.ToUpper(text)
	return strings.Contains(upper, "METAR") || strings.Contains(upper, "SPECI")
}

func (p *BulletinParser) Parse(msg *feed.Message) registry.Result {
	if !p.QuickCheck(msg.Text) {
		return nil
	}

	var reports []metar.WeatherReport
	for _, seg := range splitBulletin(msg.Text) {
		r := metar.Parse(seg)
		// A keyword with no station after it is uplink chatter, not a report.
		if r.StationID == metar.UnknownStation {
			continue
		}
		reports = append(reports, r)
	}

	if len(reports) == 0 {
		return nil
	}

	return &Result{
		MsgID:     int64(msg.ID),
		Timestamp: msg.Timestamp,
		Source:    msg.Source,
		Parser:    p.Name(),
		Reports:   reports,
	}
}

// splitBulletin returns one segment per METAR/SPECI keyword. A segment runs
// until the next keyword, an "=" terminator or the end of the text.
func splitBulletin(text string) []string {
	var (
		segments []string
		current  []string
		open     bool
	)

	flush := func() {
		if open && len(current) > 0 {
			segments = append(segments, strings.Join(current, " "))
		}
		current = nil
		open = false
	}

	for _, tok := range strings.Fields(strings.ToUpper(text)) {
		bare := strings.TrimRight(tok, "=")
		if bare == "METAR" || bare == "SPECI" {
			flush()
			open = true
		}
		if !open {
			continue
		}
		current = append(current, tok)
		if strings.HasSuffix(tok, "=") {
			flush()
		}
	}
	flush()

	return segments
}

// ParseWithTrace implements registry.Traceable for detailed debugging.
func (p *ReportParser) ParseWithTrace(msg *feed.Message) *registry.TraceResult {
	trace := &registry.TraceResult{ParserName: p.Name()}

	passed := p.QuickCheck(msg.Text)
	trace.QuickCheck = &registry.QuickCheck{Passed: passed}
	if !passed {
		trace.QuickCheck.Reason = "Empty message text"
		return trace
	}

	trace.Extractors = traceReport(0, msg.Text)
	trace.Matched = true
	return trace
}

// ParseWithTrace implements registry.Traceable for detailed debugging.
func (p *BulletinParser) ParseWithTrace(msg *feed.Message) *registry.TraceResult {
	trace := &registry.TraceResult{ParserName: p.Name()}

	passed := p.QuickCheck(msg.Text)
	trace.QuickCheck = &registry.QuickCheck{Passed: passed}
	if !passed {
		trace.QuickCheck.Reason = "No METAR or SPECI keyword found"
		return trace
	}

	segments := splitBulletin(msg.Text)
	trace.QuickCheck.Reason = strconv.Itoa(len(segments)) + " report segment(s)"
	for i, seg := range segments {
		extractors := traceReport(i, seg)
		trace.Extractors = append(trace.Extractors, extractors...)
		if len(extractors) > 0 && extractors[0].Matched {
			trace.Matched = true
		}
	}
	return trace
}

// traceReport converts the per-field group trace of one report.
func traceReport(index int, text string) []registry.Extractor {
	groups := metar.Trace(text)
	out := make([]registry.Extractor, 0, len(groups))
	for _, g := range groups {
		out = append(out, registry.Extractor{
			Name:    string(g.Field),
			Report:  index,
			Matched: g.Matched,
			Value:   g.Token,
		})
	}
	return out
}
