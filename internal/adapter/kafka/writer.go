// Package kafka publishes run-completion events so downstream consumers
// (cache invalidation, API warmers) learn when fresh data landed. The
// notifier is optional; without configured brokers every call is a no-op.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/forecast-ingest/internal/config"
)

// RunEvent announces one completed ingestion run.
type RunEvent struct {
	Domain     string        `json:"domain"`
	Run        string        `json:"run"`
	Variables  []string      `json:"variables"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Notifier produces run events to a Kafka topic.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a producer for the configured topic. Returns nil when
// no brokers are configured; a nil Notifier is safe to use.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// Publish sends one run event. Failures are logged, not fatal: a completed
// ingest is worth more than a delivery guarantee here.
func (n *Notifier) Publish(ctx context.Context, event RunEvent) {
	if n == nil {
		return
	}
	msg, err := serializeToMessage(event)
	if err != nil {
		n.logger.Warn("serialize run event failed", "error", err)
		return
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.logger.Warn("publish run event failed", "error", err, "domain", event.Domain, "run", event.Run)
	}
}

// Close flushes and closes the underlying writer.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return n.writer.Close()
}

func serializeToMessage(event RunEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Domain + "-" + event.Run),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "domain", Value: []byte(event.Domain)},
			{Key: "finished_at", Value: []byte(event.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
