// Package audit records every successful index write as a sync event. The
// syncer publishes events to Kafka and the auditor persists them to
// PostgreSQL.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/logger"
)

// Kind of sync that produced an event.
type Kind string

const (
	KindInit    Kind = "init"
	KindWebhook Kind = "webhook"
)

// Event describes the writes of one sync run.
type Event struct {
	ID                 string    `json:"id"`
	Kind               Kind      `json:"kind"`
	ProjectID          string    `json:"project_id"`
	Language           string    `json:"language,omitempty"`
	AppID              string    `json:"app_id"`
	IndexName          string    `json:"index_name"`
	ReindexedObjectIDs []string  `json:"reindexed_object_ids"`
	DeletedObjectIDs   []string  `json:"deleted_object_ids"`
	RequestID          string    `json:"request_id,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id, the request id carried by ctx
// and the current time.
func NewEvent(ctx context.Context, kind Kind) Event {
	return Event{
		ID:                 uuid.NewString(),
		Kind:               kind,
		ReindexedObjectIDs: []string{},
		DeletedObjectIDs:   []string{},
		RequestID:          logger.RequestID(ctx),
		OccurredAt:         time.Now().UTC(),
	}
}

// Publisher emits sync events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type eventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaPublisher writes events to a Kafka topic keyed by project, so a
// project's events stay ordered within one partition.
type KafkaPublisher struct {
	writer eventWriter
}

// NewKafkaPublisher wraps a producer.
func NewKafkaPublisher(p *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{writer: p}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	return k.writer.Publish(ctx, kafka.Event{Key: e.ProjectID, Value: e})
}

// LogPublisher only logs events. It is used when Kafka is disabled.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: logger.WithComponent("audit")}
}

func (l *LogPublisher) Publish(_ context.Context, e Event) error {
	l.logger.Info("sync event",
		"event_id", e.ID,
		"kind", e.Kind,
		"project_id", e.ProjectID,
		"language", e.Language,
		"app_id", e.AppID,
		"index", e.IndexName,
		"reindexed", len(e.ReindexedObjectIDs),
		"deleted", len(e.DeletedObjectIDs),
		"request_id", e.RequestID,
	)
	return nil
}
