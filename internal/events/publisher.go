// Package events publishes terminal cycle reports to a Kafka topic so
// external systems (alerting, audit) can consume execution outcomes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/capybara-rs/scheduler/internal/domain"
)

// DefaultTopic is where cycle reports land unless configured otherwise.
const DefaultTopic = "scheduler.cycles"

// cycleEvent is the wire form of a report. The error travels as its message
// plus kind label; error values themselves do not serialize.
type cycleEvent struct {
	CycleID      string    `json:"cycle_id"`
	TaskName     string    `json:"task_name"`
	State        string    `json:"state"`
	StateReached string    `json:"state_reached"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	StatusCode   int       `json:"status_code,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
}

// Publisher writes cycle reports to Kafka.
type Publisher struct {
	writer *kafka.Writer
	topic  string
}

// NewPublisher creates a Kafka publisher for the given brokers and topic.
// An empty topic falls back to DefaultTopic.
func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{}, // key by task name, per-task ordering
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, topic: topic}
}

// Publish serializes the report and writes it, keyed by task name. The
// active trace context is injected into the message headers.
func (p *Publisher) Publish(ctx context.Context, report *domain.Report) error {
	event := cycleEvent{
		CycleID:      report.CycleID,
		TaskName:     report.TaskName,
		State:        string(report.State),
		StateReached: string(report.Reached),
		StatusCode:   report.StatusCode,
		StartedAt:    report.StartedAt,
		DurationMs:   report.Duration.Milliseconds(),
	}
	if report.Err != nil {
		event.ErrorKind = report.ErrorKind()
		event.Error = report.Err.Error()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal cycle event: %w", err)
	}

	headers := make(headerCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(report.TaskName),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
