package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
type OutboxPoller struct {
	pool        *pgxpool.Pool
	producer    Publisher
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
}

// Publisher is the subset of KafkaProducer the poller needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(pool *pgxpool.Pool, producer Publisher, topicPrefix string, interval time.Duration, batchSize int, logger *slog.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxPoller{
		pool:        pool,
		producer:    producer,
		logger:      logger,
		topicPrefix: topicPrefix,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if _, err := p.Poll(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

type outboxEvent struct {
	SeqID         int64
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       json.RawMessage
	OccurredAt    time.Time
}

// Poll publishes one batch and returns how many events went out.
func (p *OutboxPoller) Poll(ctx context.Context) (int, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT "id", "eventId", "aggregateType", "aggregateId", "eventType", "partitionKey", "payload", "occurredAt"
		FROM event_outbox
		WHERE "publishedAt" IS NULL
		ORDER BY "id" ASC
		LIMIT $1`, p.batchSize)
	if err != nil {
		return 0, err
	}

	var events []outboxEvent
	for rows.Next() {
		var e outboxEvent
		if err := rows.Scan(&e.SeqID, &e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.PartitionKey, &e.Payload, &e.OccurredAt); err != nil {
			rows.Close()
			return 0, err
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	published := 0
	for _, e := range events {
		topic := p.Topic(e.EventType)
		msg, _ := json.Marshal(map[string]interface{}{
			"event_id":       e.EventID,
			"aggregate_type": e.AggregateType,
			"aggregate_id":   e.AggregateID,
			"event_type":     e.EventType,
			"payload":        e.Payload,
			"occurred_at":    e.OccurredAt,
		})

		if err := p.producer.Publish(ctx, topic, []byte(e.PartitionKey), msg); err != nil {
			// Stop here so later events are not published ahead of this one.
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "topic", topic, "error", err)
			break
		}

		_, err := p.pool.Exec(ctx,
			`UPDATE event_outbox SET "publishedAt" = now() WHERE "id" = $1`, e.SeqID)
		if err != nil {
			p.logger.Error("mark published failed", "event_id", e.EventID, "error", err)
			break
		}
		published++
	}

	if published > 0 {
		p.logger.Debug("outbox poll complete", "published", published)
	}
	return published, nil
}

// Topic maps an event type to its Kafka topic.
func (p *OutboxPoller) Topic(eventType string) string {
	return TopicFor(p.topicPrefix, eventType)
}

// TopicFor maps an event type to a topic under prefix. Event types already
// carry the "bankroll." namespace, which prefix replaces.
func TopicFor(prefix, eventType string) string {
	name := strings.TrimPrefix(eventType, "bankroll.")
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
