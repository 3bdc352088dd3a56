// Package service holds infrastructure adapters for domain contracts:
// notification sinks and the ID generator.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/notification"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/circuitbreaker"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ID GENERATOR
// ══════════════════════════════════════════════════════════════════════════════

// UUIDGenerator implements shared.IDGenerator with random UUIDs.
type UUIDGenerator struct{}

var _ shared.IDGenerator = UUIDGenerator{}

// NewIDGenerator creates the default ID generator.
func NewIDGenerator() UUIDGenerator {
	return UUIDGenerator{}
}

// GenerateID returns a new UUIDv4 string.
func (UUIDGenerator) GenerateID() string {
	return uuid.NewString()
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// Message is the JSON shape published to clients.
type Message struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Severity    string    `json:"severity"`
	ProjectID   string    `json:"project_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMessage(id string, n notification.Notification) Message {
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return Message{
		ID:          id,
		RecipientID: n.RecipientID,
		Title:       n.Title,
		Message:     n.Message,
		Severity:    string(n.Severity),
		ProjectID:   n.ProjectID,
		CreatedAt:   created,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS SINK
// ══════════════════════════════════════════════════════════════════════════════

// Publisher is the slice of the Redis cache the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
	PushCapped(ctx context.Context, key string, value any, max int, ttl time.Duration) error
}

// RedisSinkConfig configures RedisSink.
type RedisSinkConfig struct {
	// ChannelPrefix is joined with the recipient ID: "notifications:{id}".
	ChannelPrefix string

	// InboxPrefix is joined with the recipient ID for the capped inbox list.
	InboxPrefix string

	// InboxSize is how many notifications each inbox keeps.
	InboxSize int

	// InboxTTL expires inboxes of recipients that stopped receiving.
	InboxTTL time.Duration
}

// RedisSink publishes notifications on a per-recipient channel for live
// clients and keeps a capped inbox list for clients that reconnect later.
type RedisSink struct {
	pub    Publisher
	config RedisSinkConfig
	ids    shared.IDGenerator
	logger *zap.Logger
}

// NewRedisSink creates a Redis-backed sink.
func NewRedisSink(pub Publisher, cfg RedisSinkConfig, ids shared.IDGenerator, log *zap.Logger) *RedisSink {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "notifications"
	}
	if cfg.InboxPrefix == "" {
		cfg.InboxPrefix = "inbox:"
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 100
	}
	if ids == nil {
		ids = NewIDGenerator()
	}
	return &RedisSink{
		pub:    pub,
		config: cfg,
		ids:    ids,
		logger: logger.OrNop(log).With(logger.Component("redis_sink")),
	}
}

// Notify implements notification.Sink.
func (s *RedisSink) Notify(ctx context.Context, n notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	msg := toMessage(s.ids.GenerateID(), n)

	// Inbox first: a client that misses the live message still finds it.
	if err := s.pub.PushCapped(ctx, s.config.InboxPrefix+n.RecipientID, msg, s.config.InboxSize, s.config.InboxTTL); err != nil {
		return fmt.Errorf("redis sink inbox: %w", err)
	}
	if err := s.pub.Publish(ctx, s.config.ChannelPrefix+":"+n.RecipientID, msg); err != nil {
		return fmt.Errorf("redis sink publish: %w", err)
	}

	s.logger.Debug("notification published",
		zap.String("recipient_id", n.RecipientID),
		zap.String("severity", string(n.Severity)),
		logger.ProjectID(n.ProjectID),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG SINK
// ══════════════════════════════════════════════════════════════════════════════

// LogSink writes notifications to the structured log. It is the fallback
// when Redis is disabled.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{logger: logger.OrNop(log).With(logger.Component("notifications"))}
}

// Notify implements notification.Sink.
func (s *LogSink) Notify(_ context.Context, n notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	s.logger.Info(n.Title,
		zap.String("recipient_id", n.RecipientID),
		zap.String("severity", string(n.Severity)),
		zap.String("message", n.Message),
		logger.ProjectID(n.ProjectID),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MULTI SINK
// ══════════════════════════════════════════════════════════════════════════════

// MultiSink delivers to every sink. One failing sink does not stop the rest;
// their errors are joined.
type MultiSink []notification.Sink

// NewMultiSink drops nil sinks.
func NewMultiSink(sinks ...notification.Sink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Notify implements notification.Sink.
func (m MultiSink) Notify(ctx context.Context, n notification.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER SINK
// ══════════════════════════════════════════════════════════════════════════════

// BreakerSink guards a remote sink with a circuit breaker. While the breaker
// is open notifications fail fast with circuitbreaker.ErrOpen. Invalid
// notifications are rejected before the breaker and never trip it.
type BreakerSink struct {
	next    notification.Sink
	breaker *circuitbreaker.Breaker
}

// NewBreakerSink wraps next.
func NewBreakerSink(next notification.Sink, breaker *circuitbreaker.Breaker) *BreakerSink {
	return &BreakerSink{next: next, breaker: breaker}
}

// Notify implements notification.Sink.
func (s *BreakerSink) Notify(ctx context.Context, n notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.next.Notify(ctx, n)
	})
}
