package events

import (
	"context"

	"gapsentry/internal/adapters/kafka"
	"gapsentry/internal/domain/decision"
	"gapsentry/internal/reporting"
	"gapsentry/pkg/logger"
)

// MessageWriter is the transport the publisher writes to
type MessageWriter interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}

// Topics names the destinations of each event kind
type Topics struct {
	Decisions   string
	Persistence string
}

// DefaultTopics returns the standard topic names
func DefaultTopics() Topics {
	return Topics{Decisions: kafka.TopicDecisions, Persistence: kafka.TopicPersistence}
}

// Compile-time check
var _ reporting.Reporter = (*Publisher)(nil)

// Publisher publishes decision and persistence events. It implements
// reporting.Reporter; publish failures are logged and never propagate.
type Publisher struct {
	writer MessageWriter
	topics Topics
	source string
	log    *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(writer MessageWriter, topics Topics, source string) *Publisher {
	if topics.Decisions == "" {
		topics.Decisions = kafka.TopicDecisions
	}
	if topics.Persistence == "" {
		topics.Persistence = kafka.TopicPersistence
	}
	return &Publisher{
		writer: writer,
		topics: topics,
		source: source,
		log:    logger.Get().With("component", "event_publisher"),
	}
}

// PublishDecision publishes a decision keyed by symbol
func (p *Publisher) PublishDecision(ctx context.Context, d decision.Decision) error {
	return p.writer.Publish(ctx, p.topics.Decisions, d.Symbol, NewDecisionEvent(p.source, d))
}

// PublishPersistence publishes a persistence event keyed by backend
func (p *Publisher) PublishPersistence(ctx context.Context, e decision.PersistenceEvent) error {
	return p.writer.Publish(ctx, p.topics.Persistence, e.Backend, NewPersistenceEvent(p.source, e))
}

func (p *Publisher) ReportDecision(ctx context.Context, d decision.Decision) {
	if err := p.PublishDecision(ctx, d); err != nil {
		p.log.Warnw("Decision event not published", "symbol", d.Symbol, "error", err)
	}
}

func (p *Publisher) ReportPersistence(ctx context.Context, e decision.PersistenceEvent) {
	if err := p.PublishPersistence(ctx, e); err != nil {
		p.log.Warnw("Persistence event not published", "operation", e.Operation, "error", err)
	}
}
