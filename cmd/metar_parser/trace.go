package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"metar_parser/internal/feed"
	"metar_parser/internal/registry"
)

func runTrace(args []string) {
	fs := flag.NewFlagSet("trace", flag.ExitOnError)
	label := fs.String("label", "", "Message label (METAR, SPECI, RA...)")
	station := fs.String("station", "", "Station hint")
	_ = fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		lines, err := readLines(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Input read error: %v\n", err)
			os.Exit(1)
		}
		text = strings.Join(lines, "\n")
	}

	msg := &feed.Message{Label: strings.ToUpper(*label), Station: *station, Text: text}
	writeOutput(os.Stdout, traceMessage(registry.Default(), msg), true)
}

// traceMessage runs every traceable parser on msg's dispatch route.
func traceMessage(reg *registry.Registry, msg *feed.Message) []*registry.TraceResult {
	var traces []*registry.TraceResult
	for _, p := range reg.Route(msg.Label) {
		if t, ok := p.(registry.Traceable); ok {
			traces = append(traces, t.ParseWithTrace(msg))
		}
	}
	return traces
}
