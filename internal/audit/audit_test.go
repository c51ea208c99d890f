package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/postgres"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(postgres.FromDB(db)), mock
}

func sampleEvent() Event {
	return Event{
		ID:                 "0b6f0e1e-6a43-4c1b-9d8e-1f2a3b4c5d6e",
		Kind:               KindWebhook,
		ProjectID:          "p1",
		AppID:              "A",
		IndexName:          "I",
		ReindexedObjectIDs: []string{"home-id-en"},
		DeletedObjectIDs:   []string{},
		OccurredAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewEvent(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-1")
	e := NewEvent(ctx, KindInit)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, KindInit, e.Kind)
	assert.Equal(t, "req-1", e.RequestID)
	assert.NotNil(t, e.ReindexedObjectIDs)
	assert.NotNil(t, e.DeletedObjectIDs)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sync_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave(t *testing.T) {
	store, mock := newMockStore(t)
	e := sampleEvent()
	mock.ExpectExec("INSERT INTO sync_events").
		WithArgs(e.ID, "webhook", "p1", "", "A", "I",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "", e.OccurredAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Save(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessage(t *testing.T) {
	store, mock := newMockStore(t)
	handle := HandleMessage(store)
	ctx := context.Background()

	e := sampleEvent()
	value, err := json.Marshal(e)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO sync_events").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, handle(ctx, []byte("p1"), value))

	assert.NoError(t, handle(ctx, []byte("p1"), []byte("garbage")), "poison messages are skipped")
	assert.NoError(t, handle(ctx, []byte("p1"), []byte(`{"kind":"init"}`)), "events without id are skipped")

	mock.ExpectExec("INSERT INTO sync_events").WillReturnError(errors.New("db down"))
	assert.Error(t, handle(ctx, []byte("p1"), value), "store failures are retried by not committing")

	assert.NoError(t, mock.ExpectationsWereMet())
}

type capturingWriter struct {
	events []kafka.Event
}

func (c *capturingWriter) Publish(_ context.Context, e kafka.Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestKafkaPublisherKeysByProject(t *testing.T) {
	w := &capturingWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.events, 1)
	assert.Equal(t, "p1", w.events[0].Key)
	assert.Equal(t, sampleEvent(), w.events[0].Value)
}

func TestLogPublisher(t *testing.T) {
	assert.NoError(t, NewLogPublisher().Publish(context.Background(), sampleEvent()))
}
