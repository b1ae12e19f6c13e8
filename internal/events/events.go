// Package events publishes domain changes for downstream consumers such as
// reporting and data warehousing.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/config"
)

type Type string

const (
	PatientCreated           Type = "patient.created"
	PatientUpdated           Type = "patient.updated"
	PatientsDeleted          Type = "patients.deleted"
	PatientsImported         Type = "patients.imported"
	CycleCreated             Type = "cycle.created"
	CycleActivated           Type = "cycle.activated"
	CycleDeactivated         Type = "cycle.deactivated"
	CycleDeleted             Type = "cycle.deleted"
	ScreeningSectionComplete Type = "screening.section_completed"
	UserCreated              Type = "user.created"
	UserDeleted              Type = "user.deleted"
)

type Event struct {
	ID           uuid.UUID `json:"id"`
	Type         Type      `json:"type"`
	OccurredAt   time.Time `json:"occurred_at"`
	ActorID      uuid.UUID `json:"actor_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Data         any       `json:"data,omitempty"`
}

func New(t Type, actor uuid.UUID, resourceType, resourceID string, data any) Event {
	return Event{
		ID:           uuid.New(),
		Type:         t,
		OccurredAt:   time.Now().UTC(),
		ActorID:      actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Data:         data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaPublisher writes asynchronously; delivery failures are logged by
// the writer's completion callback and never fail the request.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		Async:        true,
	})
	w.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			logger.Error("failed to publish events",
				zap.Int("count", len(messages)),
				zap.String("topic", cfg.Topic),
				zap.Error(err),
			)
		}
	}

	return &KafkaPublisher{writer: w, timeout: cfg.WriteTimeout, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := message(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events.Publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// message keys by resource so all events for one patient land on one partition.
func message(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}
	return kafka.Message{
		Key:   []byte(ev.ResourceType + ":" + ev.ResourceID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}, nil
}
