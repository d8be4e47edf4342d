package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"gapsentry/internal/metrics"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// Producer handles Kafka message publishing with one writer per topic
type Producer struct {
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	brokers []string
	timeout time.Duration
	linger  time.Duration
	log     *logger.Logger
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers      []string
	WriteTimeout time.Duration // Default: 5s
	BatchTimeout time.Duration // Default: 10ms, bounds how long a synchronous publish waits for its batch
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	return &Producer{
		writers: make(map[string]*kafka.Writer),
		brokers: cfg.Brokers,
		timeout: cfg.WriteTimeout,
		linger:  cfg.BatchTimeout,
		log:     logger.Get().With("component", "kafka_producer"),
	}
}

func (p *Producer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same key, same partition
		WriteTimeout:           p.timeout,
		BatchTimeout:           p.linger,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = w
	return w
}

// Publish sends event as JSON to topic. Messages with the same key keep their order.
func (p *Producer) Publish(ctx context.Context, topic string, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	err = p.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
	metrics.RecordKafkaMessage(topic, err)
	if err != nil {
		p.log.Warnw("Kafka publish failed", "topic", topic, "key", key, "error", err)
		return errors.Wrapf(err, "publish to %s", topic)
	}

	p.log.Debugw("Published", "topic", topic, "key", key, "bytes", len(data))
	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.log.Errorw("Failed to close kafka writer", "topic", topic, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
