// Package events publishes phoneauth security events to a message broker.
//
// [NATSPublisher] and [KafkaPublisher] both satisfy phoneauth.BreachReporter
// and phoneauth.AuditSink, so one publisher can carry lockout reports and
// the audit stream:
//
//	pub, _ := events.NewNATSPublisher(natsURL, logger)
//	engine, _ := phoneauth.New().
//		WithBreachReporter(pub).
//		WithAuditSink(pub).
//		Build()
package events

import (
	"time"

	"github.com/MrEthical07/phoneauth"
)

// Subjects (NATS) and topics (Kafka).
const (
	SubjectBreach = "phoneauth.security.breach"
	SubjectAudit  = "phoneauth.audit"
)

// publishTimeout bounds a single audit publish. Audit emission has no caller
// context to inherit a deadline from.
const publishTimeout = 5 * time.Second

// BreachEvent is the payload published for a lockout report.
type BreachEvent struct {
	Identifier string            `json:"identifier"`
	Reason     string            `json:"reason"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ReportedAt time.Time         `json:"reported_at"`
}

var (
	_ phoneauth.BreachReporter = (*NATSPublisher)(nil)
	_ phoneauth.AuditSink      = (*NATSPublisher)(nil)
	_ phoneauth.BreachReporter = (*KafkaPublisher)(nil)
	_ phoneauth.AuditSink      = (*KafkaPublisher)(nil)
)

func newBreachEvent(identifier, reason string, metadata map[string]string, now time.Time) BreachEvent {
	return BreachEvent{
		Identifier: identifier,
		Reason:     reason,
		Metadata:   metadata,
		ReportedAt: now.UTC(),
	}
}
