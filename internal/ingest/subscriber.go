package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"metar_parser/internal/observability"
)

// Connect opens a NATS connection that keeps reconnecting until closed.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Subscriber feeds messages from a NATS subject into a Processor.
type Subscriber struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	proc    *Processor
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSubscriber creates a Subscriber on an open connection.
func NewSubscriber(conn *nats.Conn, proc *Processor, logger *slog.Logger, metrics *observability.Metrics) *Subscriber {
	return &Subscriber{
		conn:    conn,
		proc:    proc,
		logger:  logger,
		metrics: metrics,
	}
}

// Start queue-subscribes to subject. Members of the same queue group share the
// feed, each message going to one member. An empty queue subscribes alone.
func (s *Subscriber) Start(ctx context.Context, subject, queue string) error {
	if s.sub != nil {
		return errors.New("subscriber already started")
	}

	sub, err := s.conn.QueueSubscribe(subject, queue, func(m *nats.Msg) {
		out, err := s.proc.Process(ctx, m.Data)
		if err != nil {
			s.logger.Warn("process message", "subject", m.Subject, "error", err)
			return
		}
		if out.Reports > 0 {
			s.logger.Debug("processed message", "subject", m.Subject, "kind", out.Kind, "reports", out.Reports)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	s.sub = sub
	s.metrics.IngestRunning.Set(1)
	s.logger.Info("subscribed", "subject", subject, "queue", queue)
	return nil
}

// Close drains the subscription and the connection, letting in-flight
// messages finish.
func (s *Subscriber) Close() error {
	defer s.metrics.IngestRunning.Set(0)

	var errs []error
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain subscription: %w", err))
		}
	}
	if err := s.conn.Drain(); err != nil {
		errs = append(errs, fmt.Errorf("drain connection: %w", err))
	}
	return errors.Join(errs...)
}
