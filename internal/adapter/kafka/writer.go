package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/era5-humidity-service/internal/config"
	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

// Writer publishes humidity maps to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
// Messages are compressed with KAFKA_COMPRESSION and may be up to
// KAFKA_BATCH_BYTES before compression.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		BatchBytes:   cfg.KafkaBatchBytes,
		Compression:  compression(cfg.KafkaCompression, logger),
	}
	return &Writer{writer: w, logger: logger}
}

// compression maps a codec name to kafka-go's codec; "" and "none" disable it.
func compression(name string, logger *slog.Logger) kafkago.Compression {
	if name == "" {
		return 0
	}
	var c kafkago.Compression
	if err := c.UnmarshalText([]byte(name)); err != nil {
		logger.Warn("unknown kafka compression, sending uncompressed", "compression", name, "error", err)
		return 0
	}
	return c
}

// Publish serializes one map and writes it keyed by region, so successive
// maps of the same region land on the same partition in order.
func (w *Writer) Publish(ctx context.Context, m domain.HumidityMap) error {
	msg, err := serializeToMessage(m)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish humidity map %s: %w", m.ID, err)
	}
	w.logger.Debug("humidity map published", "id", m.ID, "topic", w.writer.Topic, "bytes", len(msg.Value))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a HumidityMap into a Kafka message.
func serializeToMessage(m domain.HumidityMap) (kafkago.Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize humidity map: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(m.Region.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "map_id", Value: []byte(m.ID)},
			{Key: "window", Value: []byte(m.Window.String())},
			{Key: "grid_count", Value: []byte(strconv.Itoa(m.GridCount))},
			{Key: "computed_at", Value: []byte(m.ComputedAt.Format(time.RFC3339))},
		},
	}, nil
}
