// Package ingest decodes feed messages into weather reports, stores them and
// republishes the decoded result.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"metar_parser/internal/feed"
	"metar_parser/internal/metar"
	"metar_parser/internal/observability"
	"metar_parser/internal/parsers/weather"
	"metar_parser/internal/registry"
	"metar_parser/internal/storage"
)

// Dispatcher routes a message to the parsers that understand it.
type Dispatcher interface {
	Dispatch(msg *feed.Message) []registry.Result
}

// Publisher sends decoded reports onwards. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Decoded is the JSON published for every decoded report.
type Decoded struct {
	MessageID  int64               `json:"message_id,omitempty"`
	Source     string              `json:"source,omitempty"`
	Parser     string              `json:"parser"`
	Timestamp  string              `json:"timestamp,omitempty"`
	ReceivedAt time.Time           `json:"received_at"`
	Colour     string              `json:"colour"`
	Report     metar.WeatherReport `json:"report"`
}

// Outcome summarises what happened to one feed message.
type Outcome struct {
	Kind      string // "envelope", "flat" or "" when undecodable.
	Reports   int
	Saved     int
	Published int
}

// Processor handles feed messages one at a time. It is safe for concurrent use
// when its store and publisher are.
type Processor struct {
	dispatcher Dispatcher
	store      storage.Store
	publisher  Publisher
	subject    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewProcessor creates a Processor. store and publisher may be nil; publishing
// is also disabled when subject is empty.
func NewProcessor(d Dispatcher, store storage.Store, pub Publisher, subject string, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		dispatcher: d,
		store:      store,
		publisher:  pub,
		subject:    subject,
		logger:     logger,
		metrics:    metrics,
	}
}

// Process decodes one raw feed message. Messages that cannot be decoded or
// carry no report are counted and dropped without error. Store and publish
// failures are returned joined after every report has been attempted.
func (p *Processor) Process(ctx context.Context, data []byte) (Outcome, error) {
	p.metrics.MessagesConsumed.Inc()

	msg, kind := feed.Decode(data)
	if msg == nil {
		p.metrics.MessagesDropped.WithLabelValues("undecodable").Inc()
		p.logger.Debug("dropping undecodable message", "bytes", len(data))
		return Outcome{}, nil
	}

	start := time.Now()
	results := p.dispatcher.Dispatch(msg)
	p.metrics.DecodeDuration.Observe(time.Since(start).Seconds())

	out := Outcome{Kind: kind}
	receivedAt := clock.Now().UTC()

	var errs []error
	for _, res := range results {
		wr, ok := res.(*weather.Result)
		if !ok {
			continue
		}
		for _, r := range wr.Reports {
			out.Reports++
			p.metrics.ObserveReport(r)

			if p.store != nil {
				rec := storage.NewRecord(int64(msg.ID), msg.Source, wr.Parser, receivedAt, r)
				rec.Timestamp = msg.Timestamp
				if err := p.store.Save(ctx, rec); err != nil {
					p.metrics.StoreErrors.Inc()
					errs = append(errs, fmt.Errorf("save %s: %w", r.StationID, err))
				} else {
					out.Saved++
				}
			}

			if err := p.publish(msg, wr.Parser, receivedAt, r); err != nil {
				p.metrics.PublishErrors.Inc()
				errs = append(errs, err)
			} else if p.publishing() {
				out.Published++
				p.metrics.ReportsPublished.Inc()
			}
		}
	}

	if out.Reports == 0 {
		p.metrics.MessagesDropped.WithLabelValues("unmatched").Inc()
		p.logger.Debug("no report in message", "id", int64(msg.ID), "label", msg.Label)
	}

	return out, errors.Join(errs...)
}

func (p *Processor) publishing() bool {
	return p.publisher != nil && p.subject != ""
}

func (p *Processor) publish(msg *feed.Message, parser string, receivedAt time.Time, r metar.WeatherReport) error {
	if !p.publishing() {
		return nil
	}

	data, err := json.Marshal(Decoded{
		MessageID:  int64(msg.ID),
		Source:     msg.Source,
		Parser:     parser,
		Timestamp:  msg.Timestamp,
		ReceivedAt: receivedAt,
		Colour:     r.FlightCategory.Colour(),
		Report:     r,
	})
	if err != nil {
		return fmt.Errorf("marshal decoded report: %w", err)
	}

	if err := p.publisher.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}
