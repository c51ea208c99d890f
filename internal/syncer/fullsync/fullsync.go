// Package fullsync rebuilds a language's records from scratch: every page of
// the language is converted and upserted in one batch after the index
// settings are pushed. Records of pages deleted upstream are not removed;
// removals only happen through webhooks.
package fullsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/content"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/record"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/status"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/tracing"
)

// LanguageFetcher retrieves the graph of every item in a language.
type LanguageFetcher interface {
	FetchLanguage(ctx context.Context, projectID, language string) (content.Graph, error)
}

// Params describes one full sync.
type Params struct {
	ProjectID    string
	Language     string
	SlugCodename string
	AppID        string
	APIKey       string
	IndexName    string
}

// StatusKey identifies the sync target in the status store.
func (p Params) StatusKey() status.Key {
	return status.Key{
		ProjectID: p.ProjectID,
		Language:  p.Language,
		AppID:     p.AppID,
		IndexName: p.IndexName,
	}
}

// flightKey identifies runs that produce identical results. The slug
// element decides which items are pages, so it is part of the key.
func (p Params) flightKey() string {
	return p.StatusKey().String() + "|" + p.SlugCodename
}

// Pipeline runs full syncs. Concurrent runs for the same target and slug
// element collapse into one.
type Pipeline struct {
	fetcher    LanguageFetcher
	opener     searchindex.Opener
	statuses   status.Store
	publisher  audit.Publisher
	metrics    *metrics.Metrics
	runTimeout time.Duration
	group      singleflight.Group
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Pipeline. m may be nil. A shared run is detached from the
// callers' cancellation and bounded by runTimeout instead; zero means no
// bound.
func New(
	fetcher LanguageFetcher,
	opener searchindex.Opener,
	statuses status.Store,
	publisher audit.Publisher,
	m *metrics.Metrics,
	runTimeout time.Duration,
) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		opener:     opener,
		statuses:   statuses,
		publisher:  publisher,
		metrics:    m,
		runTimeout: runTimeout,
		logger:     slog.Default().With("component", "fullsync"),
		now:        time.Now,
	}
}

// Run syncs every page of params.Language and returns the upserted object
// ids in codename order. Any failure aborts the run. A caller whose ctx ends
// stops waiting; the run itself continues for the other callers.
func (p *Pipeline) Run(ctx context.Context, params Params) ([]string, error) {
	ch := p.group.DoChan(params.flightKey(), func() (any, error) {
		runCtx, cancel := p.detach(ctx)
		defer cancel()
		return p.run(runCtx, params)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for full sync of %s: %w", params.Language, ctx.Err())
	case res := <-ch:
		if res.Shared {
			logger.FromContext(ctx).Info("joined in-flight full sync",
				"component", "fullsync",
				"project_id", params.ProjectID,
				"language", params.Language,
			)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// detach keeps ctx's values, such as the request id, but not its
// cancellation.
func (p *Pipeline) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if p.runTimeout > 0 {
		return context.WithTimeout(ctx, p.runTimeout)
	}
	return context.WithCancel(ctx)
}

// Status returns the last known status of a target.
func (p *Pipeline) Status(ctx context.Context, key status.Key) (status.Status, error) {
	return p.statuses.Get(ctx, key)
}

func (p *Pipeline) run(ctx context.Context, params Params) ([]string, error) {
	log := logger.FromContext(ctx).With(
		"component", "fullsync",
		"project_id", params.ProjectID,
		"language", params.Language,
		"app_id", params.AppID,
		"index", params.IndexName,
	)
	ctx, span := tracing.StartChildSpan(ctx, "fullsync")
	defer span.End()

	start := p.now()
	key := params.StatusKey()
	st := status.Started(key, start)
	p.saveStatus(ctx, log, key, st)
	log.Info("full sync started", "run_id", st.RunID)

	ids, err := p.sync(ctx, params)

	elapsed := p.now().Sub(start)
	p.saveStatus(ctx, log, key, st.Finish(len(ids), err, p.now()))
	if err != nil {
		span.SetError(err)
		p.observe("failed", elapsed)
		log.Error("full sync failed", "run_id", st.RunID, "error", err)
		return nil, err
	}
	p.observe("succeeded", elapsed)
	span.SetAttr("records", len(ids))
	log.Info("full sync completed",
		"run_id", st.RunID,
		"records", len(ids),
		"duration_ms", elapsed.Milliseconds(),
	)

	event := audit.NewEvent(ctx, audit.KindInit)
	event.ProjectID = params.ProjectID
	event.Language = params.Language
	event.AppID = params.AppID
	event.IndexName = params.IndexName
	event.ReindexedObjectIDs = ids
	if err := p.publisher.Publish(ctx, event); err != nil {
		log.Warn("publishing sync event failed", "error", err)
	}
	return ids, nil
}

func (p *Pipeline) sync(ctx context.Context, params Params) ([]string, error) {
	fetchCtx, fetchSpan := tracing.StartChildSpan(ctx, "fetch")
	graph, err := p.fetcher.FetchLanguage(fetchCtx, params.ProjectID, params.Language)
	fetchSpan.SetError(err)
	fetchSpan.End()
	if err != nil {
		return nil, fmt.Errorf("full sync of %s: %w", params.Language, err)
	}

	_, convertSpan := tracing.StartChildSpan(ctx, "convert")
	records, err := Convert(graph, params.SlugCodename)
	convertSpan.SetAttr("pages", len(records))
	convertSpan.SetError(err)
	convertSpan.End()
	if err != nil {
		return nil, fmt.Errorf("full sync of %s: %w", params.Language, err)
	}

	idx, err := p.opener.Open(searchindex.Target{
		AppID:     params.AppID,
		APIKey:    params.APIKey,
		IndexName: params.IndexName,
	})
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", params.IndexName, err)
	}

	settingsCtx, settingsSpan := tracing.StartChildSpan(ctx, "settings")
	err = idx.SetSettings(settingsCtx, searchindex.DefaultSettings())
	settingsSpan.SetError(err)
	settingsSpan.End()
	if err != nil {
		return nil, fmt.Errorf("pushing index settings: %w", err)
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ObjectID
	}
	if len(records) == 0 {
		return ids, nil
	}

	upsertCtx, upsertSpan := tracing.StartChildSpan(ctx, "upsert")
	err = idx.SaveRecords(upsertCtx, records)
	upsertSpan.SetAttr("records", len(records))
	upsertSpan.SetError(err)
	upsertSpan.End()
	if err != nil {
		return nil, fmt.Errorf("upserting %d records: %w", len(records), err)
	}
	if p.metrics != nil {
		p.metrics.RecordsUpsertedTotal.Add(float64(len(records)))
	}
	return ids, nil
}

// Convert returns a record for every page of graph, in codename order.
func Convert(graph content.Graph, slugCodename string) ([]record.Record, error) {
	var records []record.Record
	for _, codename := range graph.Codenames() {
		if !record.IsConvertible(graph, codename, slugCodename) {
			continue
		}
		rec, err := record.Convert(graph, codename, slugCodename)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (p *Pipeline) saveStatus(ctx context.Context, log *slog.Logger, key status.Key, st status.Status) {
	if err := p.statuses.Put(ctx, key, st); err != nil {
		log.Warn("recording sync status failed", "state", st.State, "error", err)
	}
}

func (p *Pipeline) observe(outcome string, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.FullSyncRunsTotal.WithLabelValues(outcome).Inc()
	p.metrics.FullSyncDuration.Observe(elapsed.Seconds())
}
