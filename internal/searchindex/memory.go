package searchindex

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/record"
)

// Op is one write recorded by a Memory index.
type Op struct {
	Kind      string
	ObjectIDs []string
}

// Memory is an in-process Index. It keeps every write in Ops and can be made
// to fail through the *Err fields.
type Memory struct {
	name string

	mu        sync.Mutex
	records   map[string]record.Record
	settings  *Settings
	Ops       []Op
	SaveErr   error
	DeleteErr error
	SearchErr error
}

// NewMemory creates an empty in-process index.
func NewMemory(name string) *Memory {
	return &Memory{name: name, records: make(map[string]record.Record)}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) SetSettings(_ context.Context, settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &settings
	m.Ops = append(m.Ops, Op{Kind: "settings"})
	return nil
}

func (m *Memory) SaveRecords(_ context.Context, records []record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ObjectID
	}
	m.Ops = append(m.Ops, Op{Kind: "save", ObjectIDs: ids})
	if m.SaveErr != nil {
		return m.SaveErr
	}
	for _, r := range records {
		m.records[r.ObjectID] = r
	}
	return nil
}

func (m *Memory) DeleteRecords(_ context.Context, objectIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ops = append(m.Ops, Op{Kind: "delete", ObjectIDs: append([]string(nil), objectIDs...)})
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	for _, id := range objectIDs {
		delete(m.records, id)
	}
	return nil
}

func (m *Memory) SearchByContentID(_ context.Context, contentID, language string) ([]record.Record, error) {
	if _, err := ContentFilters(contentID, language); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	var out []record.Record
	for _, r := range m.records {
		if r.Language != language {
			continue
		}
		for _, b := range r.Content {
			if b.ID == contentID {
				out = append(out, r)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID < out[j].ObjectID })
	return out, nil
}

// Put stores records without recording an operation.
func (m *Memory) Put(records ...record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ObjectID] = r
	}
}

// Record returns the stored record with objectID.
func (m *Memory) Record(objectID string) (record.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[objectID]
	return r, ok
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Settings returns the last settings applied, if any.
func (m *Memory) Settings() (Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return Settings{}, false
	}
	return *m.settings, true
}

// Writes returns a copy of the recorded operations.
func (m *Memory) Writes() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Op(nil), m.Ops...)
}

// MemoryOpener hands out one Memory index per index name.
type MemoryOpener struct {
	mu      sync.Mutex
	indexes map[string]*Memory
}

// NewMemoryOpener creates an opener with no indexes.
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{indexes: make(map[string]*Memory)}
}

func (o *MemoryOpener) Open(target Target) (Index, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return o.Index(target.AppID, target.IndexName), nil
}

// Index returns the Memory index for appID and name, creating it if needed.
func (o *MemoryOpener) Index(appID, name string) *Memory {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := appID + "/" + name
	idx, ok := o.indexes[key]
	if !ok {
		idx = NewMemory(name)
		o.indexes[key] = idx
	}
	return idx
}
