package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"metar_parser/internal/feed"
	"metar_parser/internal/parsers/weather"
	"metar_parser/internal/registry"
	"metar_parser/internal/storage"
)

type ExtractOut struct {
	Message *feed.Message `json:"message"`
	Results []any         `json:"results,omitempty"`
}

type Stats struct {
	Lines          int
	ParsedEnvelope int
	ParsedFlat     int
	SkippedNoText  int
	Emitted        int
	Matched        int
	Reports        int
	Archived       int
	Loaded         int
}

func runExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	inPath := fs.String("input", "", "Input JSONL file (default: stdin)")
	outPath := fs.String("output", "", "Output JSON file (default: stdout)")
	dbPath := fs.String("db", "", "Also archive decoded reports to this SQLite database")
	chAddr := fs.String("clickhouse", "", "Also load decoded reports into ClickHouse at host:port")
	chDB := fs.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "metar"), "ClickHouse database")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	includeAll := fs.Bool("all", false, "Include messages even if no parser matched")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	_ = fs.Parse(args)

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	var archive *storage.SQLiteDB
	if *dbPath != "" {
		db, err := storage.OpenSQLite(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		archive = db
	}

	st := &Stats{}
	out, err := extract(r, registry.Default(), *includeAll, st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Input read error: %v\n", err)
		os.Exit(1)
	}

	recs := collectRecords(out, time.Now().UTC())

	if archive != nil {
		if err := archiveRecords(context.Background(), archive, recs, st); err != nil {
			fmt.Fprintf(os.Stderr, "Archive error: %v\n", err)
			os.Exit(1)
		}
	}

	if *chAddr != "" {
		if err := loadClickHouse(context.Background(), *chAddr, *chDB, recs); err != nil {
			fmt.Fprintf(os.Stderr, "ClickHouse error: %v\n", err)
			os.Exit(1)
		}
		st.Loaded = len(recs)
	}

	var wout io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		wout = f
	}
	writeOutput(wout, out, *pretty)

	if *showStats {
		fmt.Fprintf(os.Stderr,
			"stats: lines=%d parsed(envelope=%d flat=%d) skipped(no_label_text)=%d emitted=%d matched=%d reports=%d archived=%d loaded=%d\n",
			st.Lines, st.ParsedEnvelope, st.ParsedFlat, st.SkippedNoText, st.Emitted, st.Matched, st.Reports, st.Archived, st.Loaded,
		)
	}
}

// extract decodes every JSONL line and dispatches it through reg.
func extract(r io.Reader, reg *registry.Registry, includeAll bool, st *Stats) ([]ExtractOut, error) {
	scanner := bufio.NewScanner(r)
	// JSON lines can be long; bump buffer.
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 16*1024*1024)

	out := make([]ExtractOut, 0, 1024)
	for scanner.Scan() {
		st.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, kind := feed.Decode([]byte(line))
		if msg == nil {
			st.SkippedNoText++
			continue
		}
		switch kind {
		case "envelope":
			st.ParsedEnvelope++
		case "flat":
			st.ParsedFlat++
		}

		results := reg.Dispatch(msg)
		if !includeAll && len(results) == 0 {
			continue
		}

		rany := make([]any, 0, len(results))
		for _, res := range results {
			rany = append(rany, res) // keep concrete types for JSON marshal
			if wr, ok := res.(*weather.Result); ok {
				st.Reports += len(wr.Reports)
			}
		}
		out = append(out, ExtractOut{Message: msg, Results: rany})
		st.Emitted++
		if len(results) > 0 {
			st.Matched++
		}
	}

	return out, scanner.Err()
}

// collectRecords flattens every decoded report in out for storage.
func collectRecords(out []ExtractOut, receivedAt time.Time) []storage.Record {
	var recs []storage.Record
	for _, eo := range out {
		for _, res := range eo.Results {
			wr, ok := res.(*weather.Result)
			if !ok {
				continue
			}
			for _, r := range wr.Reports {
				rec := storage.NewRecord(wr.MsgID, wr.Source, wr.Parser, receivedAt, r)
				rec.Timestamp = wr.Timestamp
				recs = append(recs, rec)
			}
		}
	}
	return recs
}

// archiveRecords writes recs to the SQLite archive.
func archiveRecords(ctx context.Context, db *storage.SQLiteDB, recs []storage.Record, st *Stats) error {
	for _, rec := range recs {
		if _, err := db.Insert(ctx, rec); err != nil {
			return fmt.Errorf("message %d: %w", rec.MessageID, err)
		}
		st.Archived++
	}
	return nil
}

// loadClickHouse bulk-inserts recs into the ClickHouse history table.
func loadClickHouse(ctx context.Context, addr, database string, recs []storage.Record) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("parse port: %w", err)
	}

	ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
		Host:     host,
		Port:     port,
		Database: database,
		User:     envOrDefault("CLICKHOUSE_USER", "default"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	})
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.CreateSchema(ctx); err != nil {
		return err
	}
	return ch.InsertBatch(ctx, recs)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
