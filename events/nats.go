package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes breach reports and audit events as JSON on NATS
// subjects.
type NATSPublisher struct {
	conn   natsConn
	logger *zap.Logger
	now    func() time.Time

	BreachSubject string
	AuditSubject  string
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("events")

	conn, err := nats.Connect(url,
		nats.Name("phoneauth"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(conn, logger), nil
}

func newNATSPublisher(conn natsConn, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:          conn,
		logger:        logger,
		now:           time.Now,
		BreachSubject: SubjectBreach,
		AuditSubject:  SubjectAudit,
	}
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Report publishes a [BreachEvent].
func (p *NATSPublisher) Report(ctx context.Context, identifier, reason string, metadata map[string]string) error {
	return p.publish(ctx, p.BreachSubject, newBreachEvent(identifier, reason, metadata, p.now()))
}

// Emit publishes an audit event. Failures are logged.
func (p *NATSPublisher) Emit(ctx context.Context, event phoneauth.AuditEvent) {
	if err := p.publish(ctx, p.AuditSubject, event); err != nil {
		p.logger.Warn("audit publish failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
