// Package status records the state of the last full sync per target so the
// admin widget can render not started, in progress, succeeded or failed.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/redis"
)

// State of a full sync.
type State string

const (
	NotStarted State = "not_started"
	InProgress State = "in_progress"
	Succeeded  State = "succeeded"
	Failed     State = "failed"
)

const keyPrefix = "search-sync:status:"

// Key identifies a full-sync target.
type Key struct {
	ProjectID string
	Language  string
	AppID     string
	IndexName string
}

// String renders the storage key.
func (k Key) String() string {
	return keyPrefix + strings.Join([]string{k.ProjectID, k.Language, k.AppID, k.IndexName}, "|")
}

// Status is the last known state of a target's full sync.
type Status struct {
	State     State      `json:"state"`
	RunID     string     `json:"runId,omitempty"`
	ProjectID string     `json:"projectId"`
	Language  string     `json:"language"`
	AppID     string     `json:"algoliaAppId"`
	IndexName string     `json:"algoliaIndexName"`
	Records   int        `json:"records"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Unknown is the status of a target that never synced.
func Unknown(k Key) Status {
	return Status{
		State:     NotStarted,
		ProjectID: k.ProjectID,
		Language:  k.Language,
		AppID:     k.AppID,
		IndexName: k.IndexName,
	}
}

// Started returns a fresh in-progress status with a new run id.
func Started(k Key, now time.Time) Status {
	s := Unknown(k)
	s.State = InProgress
	s.RunID = uuid.NewString()
	s.StartedAt = &now
	s.UpdatedAt = &now
	return s
}

// Finish returns s moved to Succeeded, or to Failed when err is non-nil.
func (s Status) Finish(records int, err error, now time.Time) Status {
	s.UpdatedAt = &now
	if err != nil {
		s.State = Failed
		s.Error = err.Error()
		return s
	}
	s.State = Succeeded
	s.Records = records
	s.Error = ""
	return s
}

// Store persists statuses.
type Store interface {
	Get(ctx context.Context, k Key) (Status, error)
	Put(ctx context.Context, k Key, s Status) error
}

// RedisStore keeps statuses in Redis as JSON.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store whose entries expire after ttl. A zero ttl
// keeps them forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, k Key) (Status, error) {
	data, err := r.client.Get(ctx, k.String())
	if redis.IsNilError(err) {
		return Unknown(k), nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading sync status: %w", err)
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, fmt.Errorf("decoding sync status: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Put(ctx context.Context, k Key, s Status) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding sync status: %w", err)
	}
	if err := r.client.Set(ctx, k.String(), data, r.ttl); err != nil {
		return fmt.Errorf("writing sync status: %w", err)
	}
	return nil
}

// MemoryStore keeps statuses in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[Key]Status
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{statuses: make(map[Key]Status)}
}

func (m *MemoryStore) Get(_ context.Context, k Key) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.statuses[k]; ok {
		return s, nil
	}
	return Unknown(k), nil
}

func (m *MemoryStore) Put(_ context.Context, k Key, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[k] = s
	return nil
}
