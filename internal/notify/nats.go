// Package notify forwards build events to external subscribers over NATS.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher publishes PagesBuilt events as JSON on a subject.
type NATSPublisher struct {
	conn    Conn
	subject string
	retry   retry.Policy
	logger  *slog.Logger
}

// Option configures a NATSPublisher.
type Option func(*NATSPublisher)

// WithRetry retries failed publishes of forwarded events under policy.
func WithRetry(policy retry.Policy) Option {
	return func(p *NATSPublisher) { p.retry = policy }
}

// Connect dials url and returns a publisher for subject.
func Connect(url, subject string, logger *slog.Logger, opts ...Option) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("sitebuilder"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to connect to NATS").
			WithContext("url", url).
			Build()
	}
	p := NewNATSPublisher(conn, subject, logger, opts...)
	p.logger.Info("NATS publisher connected", slog.String("url", url), slog.String("subject", subject))
	return p, nil
}

// NewNATSPublisher wraps an existing connection. Without WithRetry a failed
// publish is not retried.
func NewNATSPublisher(conn Conn, subject string, logger *slog.Logger, opts ...Option) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &NATSPublisher{conn: conn, subject: subject, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends one event.
func (p *NATSPublisher) Publish(evt events.PagesBuilt) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal event").Build()
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "failed to publish event").
			WithContext("subject", p.subject).
			WithContext("batch_id", evt.BatchID).
			Build()
	}
	p.logger.Debug("Published pages-built event", logfields.BatchID(evt.BatchID), logfields.Pages(len(evt.Keys)))
	return nil
}

// Run forwards PagesBuilt events from bus until ctx is done or the bus closes.
// Publish failures are logged.
func (p *NATSPublisher) Run(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := events.Subscribe[events.PagesBuilt](bus, 16)
	p.forward(ctx, ch, unsubscribe)
}

// Start subscribes before returning and forwards in the background. The
// returned channel closes once forwarding stops; events buffered when the bus
// closes are still published.
func (p *NATSPublisher) Start(ctx context.Context, bus *events.Bus) <-chan struct{} {
	ch, unsubscribe := events.Subscribe[events.PagesBuilt](bus, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.forward(ctx, ch, unsubscribe)
	}()
	return done
}

func (p *NATSPublisher) forward(ctx context.Context, ch <-chan events.PagesBuilt, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := p.retry.Do(ctx, func() error { return p.Publish(evt) }); err != nil {
				p.logger.Warn("Failed to publish build event", logfields.BatchID(evt.BatchID), logfields.Error(err))
			}
		}
	}
}

// Close closes the connection.
func (p *NATSPublisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}
