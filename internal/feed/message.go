// Package feed provides the report feed message types and their JSON decoding.
package feed

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexInt64 handles JSON fields that can be either string or number.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	// Try as number first
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*f = 0
			return nil // Unparseable IDs are treated as absent.
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

// Message is one raw weather text received from a feed.
// It can be populated directly from flat JSON or extracted from an Envelope.
type Message struct {
	ID        FlexInt64 `json:"id"`
	Source    string    `json:"source,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	Station   string    `json:"station,omitempty"` // Station hint from the feed, if any.
	Label     string    `json:"label,omitempty"`   // Report type (METAR, SPECI) or ACARS label (RA, C1...).
	Text      string    `json:"text"`
}

// Envelope is the NATS feed format where the message is nested inside a
// "message" field with feed metadata at the top level.
type Envelope struct {
	Source  *EnvelopeSource `json:"source,omitempty"`
	Station string          `json:"station,omitempty"`
	Message *Inner          `json:"message,omitempty"`
}

// EnvelopeSource identifies the publisher of an envelope.
type EnvelopeSource struct {
	Name        string `json:"name,omitempty"`
	Application string `json:"application,omitempty"`
}

// Inner is the message structure nested inside an Envelope.
type Inner struct {
	ID        FlexInt64 `json:"id"`
	Timestamp string    `json:"timestamp"`
	Label     string    `json:"label"`
	Text      string    `json:"text"`
	Station   string    `json:"station,omitempty"`
}

// ToMessage converts an Envelope to a unified Message.
func (e *Envelope) ToMessage() *Message {
	if e.Message == nil {
		return nil
	}

	msg := &Message{
		ID:        e.Message.ID,
		Timestamp: e.Message.Timestamp,
		Label:     e.Message.Label,
		Text:      e.Message.Text,
		Station:   e.Message.Station,
	}

	if msg.Station == "" {
		msg.Station = e.Station
	}
	if e.Source != nil {
		msg.Source = e.Source.Name
	}

	return msg
}

// Decode reads one JSON object as either an Envelope or a flat Message.
// It returns the message and the detected kind ("envelope" or "flat"), or
// nil when the object carries no label or text.
func Decode(b []byte) (*Message, string) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err == nil && e.Message != nil {
		if msg := e.ToMessage(); msg != nil && !msg.Empty() {
			return msg, "envelope"
		}
	}

	var m Message
	if err := json.Unmarshal(b, &m); err == nil && !m.Empty() {
		return &m, "flat"
	}

	return nil, ""
}

// Empty reports whether the message has neither label nor text.
func (m *Message) Empty() bool {
	return strings.TrimSpace(m.Label) == "" && strings.TrimSpace(m.Text) == ""
}
