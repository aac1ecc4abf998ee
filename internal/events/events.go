// Package events publishes finished indexing runs to NATS with trace context
// propagated in the message headers.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Publisher announces finished runs.
type Publisher interface {
	PublishRun(ctx context.Context, run *models.RunRecord) error
	Close() error
}

// NopPublisher discards every event. It is used when no NATS URL is configured.
type NopPublisher struct{}

func (NopPublisher) PublishRun(context.Context, *models.RunRecord) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

// msgPublisher is the subset of *nats.Conn used here.
type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSPublisher publishes run records as JSON to "<subject>.<kind>".
type NATSPublisher struct {
	conn    msgPublisher
	close   func()
	subject string
	logger  *zap.Logger
}

// Option configures a NATSPublisher.
type Option func(*NATSPublisher)

// WithLogger sets the logger used for publish diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(p *NATSPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// Connect dials the NATS server at url.
func Connect(url, subject string, opts ...Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("kioku"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	p := newNATSPublisher(nc, subject, opts...)
	p.close = func() { _ = nc.Drain() }
	return p, nil
}

func newNATSPublisher(conn msgPublisher, subject string, opts ...Option) *NATSPublisher {
	if subject == "" {
		subject = "kioku.runs"
	}
	p := &NATSPublisher{conn: conn, subject: subject, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishRun serializes run and publishes it. Trace context from ctx is injected
// into the message headers.
func (p *NATSPublisher) PublishRun(ctx context.Context, run *models.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	msg := &nats.Msg{
		Subject: p.subject + "." + string(run.Kind),
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	p.logger.Debug("run event published", zap.String("subject", msg.Subject), zap.String("run_id", run.RunID))
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
