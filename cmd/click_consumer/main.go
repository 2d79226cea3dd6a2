package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atalho/atalho-url/internal/config"
	"github.com/atalho/atalho-url/internal/events"
	"github.com/atalho/atalho-url/internal/infrastructure/db"
	"github.com/atalho/atalho-url/internal/infrastructure/logger"
	"github.com/atalho/atalho-url/internal/infrastructure/telemetry"
	"github.com/atalho/atalho-url/internal/processing/shortener"
	mongoStorage "github.com/atalho/atalho-url/internal/storage/mongo"
	postgresStorage "github.com/atalho/atalho-url/internal/storage/postgres"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	fetchMaxWait   = 500 * time.Millisecond
	operationTTL   = 5 * time.Second
	consumeBackoff = 500 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Env, cfg.App.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var shutdownTracer func(context.Context) error
	if cfg.OTel.Enabled {
		shutdownTracer, err = telemetry.InitTracer(
			cfg.OTel.Endpoint,
			fmt.Sprintf("%s-click-consumer", cfg.App.Name),
			cfg.App.Version,
		)
		if err != nil {
			logger.Warn("failed to initialize tracer, continuing without tracing", zap.Error(err))
			shutdownTracer = nil
		}
	}
	defer func() {
		if shutdownTracer == nil {
			return
		}
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("failed to shutdown tracer", zap.Error(err))
		}
	}()

	store, closeStore := connectStore(cfg)
	defer closeStore()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Clicks.KafkaBrokers,
		Topic:       cfg.Clicks.KafkaTopic,
		GroupID:     cfg.Clicks.KafkaGroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     fetchMaxWait,
		StartOffset: kafka.FirstOffset,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("failed to close kafka reader", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("click consumer started",
		zap.Strings("kafka_brokers", cfg.Clicks.KafkaBrokers),
		zap.String("kafka_topic", cfg.Clicks.KafkaTopic),
		zap.String("kafka_group", cfg.Clicks.KafkaGroupID),
	)

	tracer := otel.Tracer("click-consumer")
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("click consumer stopping")
				return
			}
			logger.Error("failed to fetch kafka message", zap.Error(err))
			time.Sleep(consumeBackoff)
			continue
		}

		consumeCtx := contextFromKafkaHeaders(ctx, msg.Headers)
		consumeCtx, span := tracer.Start(
			consumeCtx,
			"kafka.consume.click_recorded",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination.name", msg.Topic),
				attribute.String("messaging.operation", "process"),
				attribute.Int("messaging.kafka.partition", msg.Partition),
				attribute.Int64("messaging.kafka.offset", msg.Offset),
			),
		)

		if err := processMessage(consumeCtx, msg, store); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "process click event failed")
			logger.Error("failed to process click event",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			span.End()
			time.Sleep(consumeBackoff)
			continue
		}

		if err := reader.CommitMessages(consumeCtx, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit kafka offset failed")
			logger.Error("failed to commit kafka offset",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			span.End()
			time.Sleep(consumeBackoff)
			continue
		}

		span.End()
	}
}

func processMessage(ctx context.Context, msg kafka.Message, store shortener.Store) error {
	var event events.ClickRecorded
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Warn("invalid click event payload, skipping",
			zap.Error(err),
			zap.ByteString("payload", msg.Value),
		)
		return nil
	}
	if strings.TrimSpace(event.Code) == "" {
		logger.Warn("click event missing code, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	occurredAt := msg.Time.UTC()
	if strings.TrimSpace(event.OccurredAt) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, event.OccurredAt)
		if err != nil {
			logger.Warn("invalid event occurredAt, using kafka timestamp",
				zap.Error(err),
				zap.String("event_id", event.EventID),
			)
		} else {
			occurredAt = parsed.UTC()
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, operationTTL)
	defer cancel()

	if err := store.IncrementClick(opCtx, event.Code, occurredAt); err != nil {
		if errors.Is(err, shortener.ErrNotFound) {
			// Event is stale relative to current data (e.g. deleted/expired). Safe to skip.
			logger.Info("click event skipped for missing link",
				zap.String("event_id", event.EventID),
				zap.String("code", event.Code),
			)
			return nil
		}
		return err
	}
	return nil
}

func connectStore(cfg *config.Config) (shortener.Store, func()) {
	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		mongoConn, err := db.ConnectMongo(cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		repo, err := mongoStorage.NewLinksRepository(mongoConn)
		if err != nil {
			logger.Fatal("failed to initialize links repository", zap.Error(err))
		}
		return repo, func() { _ = mongoConn.Disconnect() }
	default:
		pgConn, err := db.ConnectPostgres(context.Background(), cfg.Store.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		repo, err := postgresStorage.NewLinksRepository(pgConn)
		if err != nil {
			logger.Fatal("failed to initialize links repository", zap.Error(err))
		}
		return repo, pgConn.Close
	}
}

func contextFromKafkaHeaders(parent context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		key := strings.ToLower(strings.TrimSpace(header.Key))
		if key == "" {
			continue
		}
		carrier.Set(key, string(header.Value))
	}
	return otel.GetTextMapPropagator().Extract(parent, carrier)
}
