package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS sync_events (
    id                   UUID PRIMARY KEY,
    kind                 TEXT NOT NULL,
    project_id           TEXT NOT NULL,
    language             TEXT NOT NULL DEFAULT '',
    app_id               TEXT NOT NULL,
    index_name           TEXT NOT NULL,
    reindexed_object_ids TEXT[] NOT NULL,
    deleted_object_ids   TEXT[] NOT NULL,
    request_id           TEXT NOT NULL DEFAULT '',
    occurred_at          TIMESTAMPTZ NOT NULL
)`

// Store persists sync events in the sync_events table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "audit-store"),
	}
}

// EnsureSchema creates the sync_events table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating sync_events table: %w", err)
	}
	return nil
}

// Save inserts e. Redelivered events are ignored.
func (s *Store) Save(ctx context.Context, e Event) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO sync_events
		    (id, kind, project_id, language, app_id, index_name,
		     reindexed_object_ids, deleted_object_ids, request_id, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Kind), e.ProjectID, e.Language, e.AppID, e.IndexName,
		pq.Array(e.ReindexedObjectIDs), pq.Array(e.DeletedObjectIDs), e.RequestID, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("saving sync event %s: %w", e.ID, err)
	}
	return nil
}

// HandleMessage returns a Kafka MessageHandler that stores each sync event.
// Undecodable messages are logged and skipped.
func HandleMessage(store *Store) kafka.MessageHandler {
	logger := slog.Default().With("component", "audit-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		e, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			logger.Error("failed to decode sync event", "error", err, "key", string(key))
			return nil
		}
		if e.ID == "" {
			logger.Error("sync event without id, skipping", "key", string(key))
			return nil
		}
		if err := store.Save(ctx, e); err != nil {
			return err
		}
		logger.Info("sync event recorded",
			"event_id", e.ID,
			"kind", e.Kind,
			"project_id", e.ProjectID,
			"reindexed", len(e.ReindexedObjectIDs),
			"deleted", len(e.DeletedObjectIDs),
		)
		return nil
	}
}
