package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/attaboy/bankroll/internal/infra"
	"github.com/segmentio/kafka-go"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	tail := flag.String("tail", "", "instead of relaying, print events from this event type's topic (e.g. bankroll.wager.settled)")
	flag.Parse()

	if err := run(logger, *tail); err != nil {
		logger.Error("outbox relay failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, tail string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("KAFKA_ENABLED must be true for the relay")
	}

	if tail != "" {
		return tailTopic(ctx, cfg, tail, logger)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-relay connected to postgres")

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	poller := infra.NewOutboxPoller(pool, producer, cfg.KafkaTopicPrefix, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)
	poller.Start(ctx)

	<-ctx.Done()
	logger.Info("outbox-relay shutting down")
	return nil
}

// tailTopic logs every message relayed for one event type.
func tailTopic(ctx context.Context, cfg *infra.Config, eventType string, logger *slog.Logger) error {
	topic := infra.TopicFor(cfg.KafkaTopicPrefix, eventType)
	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topic, "outbox-relay-tail", cfg.KafkaEnabled, logger)
	defer consumer.Close()

	logger.Info("tailing topic", "topic", topic)
	return consumer.Consume(ctx, func(_ context.Context, msg kafka.Message) error {
		logger.Info("event",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value", string(msg.Value),
		)
		return nil
	})
}
