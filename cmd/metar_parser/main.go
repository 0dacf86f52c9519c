// Command-line entry point for the METAR parser.
//
// Input formats
// -------------
// decode takes raw report text, either as arguments (one report each) or as
// stdin lines.
//
// extract takes JSONL feed messages. Each line may be:
//  1. NATS envelope: {"source":{...}, "station":"KJFK", "message":{"label":"RA","text":"..."}}
//  2. Flat message:  {"label":"METAR","text":"KJFK 121551Z ...", ...}
//
// Messages are routed through the parser registry, so ACARS weather uplinks
// holding several reports yield one result with every report.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"metar_parser/internal/metar"
	_ "metar_parser/internal/parsers" // register all parsers via init()
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "metar_parser - commands:")
	fmt.Fprintln(w, "  decode   - decode raw METAR/SPECI text and output JSON")
	fmt.Fprintln(w, "  extract  - parse a JSONL feed file and output JSON")
	fmt.Fprintln(w, "  trace    - show how each parser handles one message")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  metar_parser decode [-pretty] [-stats] [report ...]")
	fmt.Fprintln(w, "  metar_parser extract -input messages.jsonl [-output out.json] [-db archive.db] [-clickhouse host:9000] [-pretty] [-all] [-stats]")
	fmt.Fprintln(w, "  metar_parser trace [-label RA] [-station KJFK] text")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - decode reads one report per stdin line when no report is given.")
	fmt.Fprintln(w, "  - extract input must be JSONL (one JSON object per line).")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "decode":
		runDecode(os.Args[2:])
	case "extract":
		runExtract(os.Args[2:])
	case "trace":
		runTrace(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

// DecodeStats counts what decode saw.
type DecodeStats struct {
	Reports    int
	Defaulted  int
	ByCategory map[metar.FlightCategory]int
	ByField    map[metar.Field]int
}

func runDecode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	_ = fs.Parse(args)

	texts := fs.Args()
	if len(texts) == 0 {
		lines, err := readLines(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Input read error: %v\n", err)
			os.Exit(1)
		}
		texts = lines
	}

	reports, st := decodeReports(texts)

	writeOutput(os.Stdout, reports, *pretty)

	if *showStats {
		fmt.Fprintf(os.Stderr, "stats: reports=%d defaulted=%d categories=%s missing=%s\n",
			st.Reports, st.Defaulted, formatCounts(st.ByCategory), formatCounts(st.ByField))
	}
}

// decodeReports decodes every non-blank text.
func decodeReports(texts []string) ([]metar.WeatherReport, *DecodeStats) {
	st := &DecodeStats{
		ByCategory: make(map[metar.FlightCategory]int),
		ByField:    make(map[metar.Field]int),
	}

	reports := make([]metar.WeatherReport, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		r := metar.Parse(text)
		reports = append(reports, r)

		st.Reports++
		st.ByCategory[r.FlightCategory]++
		if len(r.Missing) > 0 {
			st.Defaulted++
		}
		for _, f := range r.Missing {
			st.ByField[f]++
		}
	}
	return reports, st
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func writeOutput(w io.Writer, v any, pretty bool) {
	enc, err := marshalJSON(v, pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
		os.Exit(1)
	}
	_, _ = w.Write(enc)
	_, _ = w.Write([]byte("\n"))
}

// formatCounts renders a count map as "k=v,k=v" in key order.
func formatCounts[K ~string](m map[K]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[K(k)]))
	}
	return strings.Join(parts, ",")
}
