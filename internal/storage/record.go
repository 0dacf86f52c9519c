// Package storage provides persistent storage for decoded weather reports.
//
// SQLite holds a local archive with full-text search over the raw report,
// ClickHouse keeps the analytics history and PostgreSQL keeps the latest
// conditions per station.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"metar_parser/internal/metar"
)

// ErrNotFound is returned when a lookup has no matching row.
var ErrNotFound = errors.New("not found")

// Record is a decoded report flattened for storage, with the metadata of the
// message it arrived in.
type Record struct {
	MessageID  int64
	Source     string
	Parser     string
	Timestamp  string // Feed timestamp, as received.
	ReceivedAt time.Time

	Station            string
	Category           string
	VisibilitySM       decimal.Decimal
	VisibilityModifier string
	CeilingFt          int
	WindDirDeg         *int
	WindVariable       bool
	WindSpeedKt        *int
	WindGustKt         *int
	TemperatureC       int
	DewpointC          *int
	AltimeterInHg      decimal.Decimal
	Clouds             string // Layers as reported, e.g. "FEW030 BKN100".
	Missing            []string
	RawText            string

	Report metar.WeatherReport
}

// NewRecord flattens a report for storage.
func NewRecord(msgID int64, source, parser string, receivedAt time.Time, r metar.WeatherReport) Record {
	rec := Record{
		MessageID:          msgID,
		Source:             source,
		Parser:             parser,
		ReceivedAt:         receivedAt.UTC(),
		Station:            r.StationID,
		Category:           string(r.FlightCategory),
		VisibilitySM:       r.Visibility.Miles,
		VisibilityModifier: string(r.Visibility.Modifier),
		CeilingFt:          r.CeilingFt,
		TemperatureC:       r.TemperatureC,
		DewpointC:          r.DewpointC,
		AltimeterInHg:      r.AltimeterInHg,
		Missing:            r.MissingNames(),
		RawText:            r.RawText,
		Report:             r,
	}

	if r.Wind != nil {
		rec.WindVariable = r.Wind.Direction.Variable
		if !r.Wind.Direction.Variable {
			dir := r.Wind.Direction.Degrees
			rec.WindDirDeg = &dir
		}
		speed := r.Wind.SpeedKt
		rec.WindSpeedKt = &speed
		rec.WindGustKt = r.Wind.GustKt
	}

	layers := make([]string, 0, len(r.CloudLayers))
	for _, l := range r.CloudLayers {
		layers = append(layers, l.String())
	}
	rec.Clouds = strings.Join(layers, " ")

	return rec
}

// ReportJSON returns the full decoded report as JSON.
func (r Record) ReportJSON() ([]byte, error) {
	b, err := json.Marshal(r.Report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return b, nil
}

// Store persists decoded reports.
type Store interface {
	Save(ctx context.Context, rec Record) error
}

// Multi saves every record to all of its stores. A failing store does not
// stop the others; all errors are returned joined.
type Multi []Store

func (m Multi) Save(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
