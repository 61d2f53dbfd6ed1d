package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures [KafkaPublisher].
type KafkaConfig struct {
	Brokers     []string
	BreachTopic string
	AuditTopic  string
}

// KafkaPublisher writes breach reports and audit events to Kafka topics.
// Messages are keyed by identifier or user ID so one subject's events stay
// ordered within a partition.
type KafkaPublisher struct {
	writer      messageWriter
	logger      *zap.Logger
	now         func() time.Time
	breachTopic string
	auditTopic  string
}

// NewKafkaPublisher returns a publisher writing to cfg.Brokers.
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("events")

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
	return newKafkaPublisher(w, cfg, logger), nil
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	if cfg.BreachTopic == "" {
		cfg.BreachTopic = SubjectBreach
	}
	if cfg.AuditTopic == "" {
		cfg.AuditTopic = SubjectAudit
	}
	return &KafkaPublisher{
		writer:      w,
		logger:      logger,
		now:         time.Now,
		breachTopic: cfg.BreachTopic,
		auditTopic:  cfg.AuditTopic,
	}
}

func (p *KafkaPublisher) write(ctx context.Context, topic, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  p.now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

// Report writes a [BreachEvent] keyed by identifier.
func (p *KafkaPublisher) Report(ctx context.Context, identifier, reason string, metadata map[string]string) error {
	return p.write(ctx, p.breachTopic, identifier, newBreachEvent(identifier, reason, metadata, p.now()))
}

// Emit writes an audit event. Failures are logged.
func (p *KafkaPublisher) Emit(ctx context.Context, event phoneauth.AuditEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := event.UserID
	if key == "" {
		key = event.Identifier
	}
	if err := p.write(ctx, p.auditTopic, key, event); err != nil {
		p.logger.Error("audit publish failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
