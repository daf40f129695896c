// Package export forwards sensor records to Kafka for downstream consumers.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Record is the exported message value.
type Record struct {
	DeviceID string                   `json:"deviceId"`
	Data     irrigation.SensorReading `json:"data"`
	Time     time.Time                `json:"timestamp"`
}

type KafkaExporter struct {
	deviceID string
	writer   messageWriter
	log      *slog.Logger
}

func NewKafkaExporter(brokers []string, topic, deviceID string, log *slog.Logger) *KafkaExporter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &KafkaExporter{
		deviceID: deviceID,
		writer:   w,
		log:      log.With(slog.String("component", "kafka-export"), slog.String("topic", topic)),
	}
}

// Export writes rec keyed by device id so one device's records keep their
// order within a partition.
func (e *KafkaExporter) Export(ctx context.Context, rec irrigation.SensorRecord) error {
	b, err := json.Marshal(Record{DeviceID: e.deviceID, Data: rec.Data, Time: rec.Timestamp.UTC()})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(e.deviceID),
		Value: b,
		Time:  rec.Timestamp,
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka export: %w", err)
	}
	return nil
}

func (e *KafkaExporter) Close() error {
	e.log.Info("closing kafka writer")
	return e.writer.Close()
}
