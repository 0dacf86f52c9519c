// Package registry provides tracing interfaces for parser debugging.
package registry

import "metar_parser/internal/feed"

// TraceResult contains trace information from a parser's attempt to parse a message.
type TraceResult struct {
	ParserName string      `json:"parser"`
	QuickCheck *QuickCheck `json:"quick_check,omitempty"` // nil if not applicable.
	Extractors []Extractor `json:"extractors,omitempty"`
	Matched    bool        `json:"matched"`
}

// QuickCheck contains the result of a parser's quick check.
type QuickCheck struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Extractor contains debug information about a field decoder.
type Extractor struct {
	Name    string `json:"name"`            // Field name (e.g., "wind", "visibility").
	Report  int    `json:"report"`          // Index of the report within the message.
	Matched bool   `json:"matched"`         // Whether the decoder accepted a token.
	Value   string `json:"value,omitempty"` // Accepted token (if matched).
}

// Traceable is implemented by parsers that support debug tracing.
// This allows the debug command to show detailed information about
// why a parser did or didn't match a message.
type Traceable interface {
	// ParseWithTrace attempts to parse the message and returns detailed trace information
	// about which tokens each field decoder accepted.
	ParseWithTrace(msg *feed.Message) *TraceResult
}