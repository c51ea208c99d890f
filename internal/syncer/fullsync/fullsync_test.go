package fullsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/content"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/status"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/metrics"
)

type fakeFetcher struct {
	graph   content.Graph
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeFetcher) FetchLanguage(ctx context.Context, _, _ string) (content.Graph, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.graph, f.err
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *capturingPublisher) Publish(_ context.Context, e audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

var params = Params{
	ProjectID:    "p1",
	Language:     "en",
	SlugCodename: "url_slug",
	AppID:        "A",
	APIKey:       "key",
	IndexName:    "I",
}

func languageGraph() content.Graph {
	return content.NewGraph(
		content.NewItem(
			content.System{ID: "page-id", Codename: "page", Language: "en", Type: "page"},
			content.NamedElement{Codename: "title", Element: content.TextElement("Welcome")},
			content.NamedElement{Codename: "url_slug", Element: content.SlugElement("welcome")},
			content.NamedElement{Codename: "body", Element: content.LinkedItemsElement("greeting")},
		),
		content.NewItem(
			content.System{ID: "greeting-id", Codename: "greeting", Language: "en", Type: "fragment"},
			content.NamedElement{Codename: "text", Element: content.RichTextElement("<p>Hello</p>")},
		),
		content.NewItem(
			content.System{ID: "orphan-id", Codename: "orphan", Language: "en", Type: "page"},
			content.NamedElement{Codename: "title", Element: content.TextElement("No slug")},
			content.NamedElement{Codename: "url_slug", Element: content.SlugElement("")},
		),
	)
}

type harness struct {
	pipeline  *Pipeline
	fetcher   *fakeFetcher
	opener    *searchindex.MemoryOpener
	statuses  *status.MemoryStore
	publisher *capturingPublisher
	metrics   *metrics.Metrics
}

func newHarness(f *fakeFetcher) *harness {
	h := &harness{
		fetcher:   f,
		opener:    searchindex.NewMemoryOpener(),
		statuses:  status.NewMemoryStore(),
		publisher: &capturingPublisher{},
		metrics:   metrics.NewUnregistered(),
	}
	h.pipeline = New(f, h.opener, h.statuses, h.publisher, h.metrics, time.Minute)
	return h
}

func TestRunIndexesPages(t *testing.T) {
	h := newHarness(&fakeFetcher{graph: languageGraph()})

	ids, err := h.pipeline.Run(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, []string{"page-id-en"}, ids)

	idx := h.opener.Index("A", "I")
	rec, ok := idx.Record("page-id-en")
	require.True(t, ok)
	assert.Contains(t, rec.Text(), "Hello")

	ops := idx.Writes()
	require.Len(t, ops, 2)
	assert.Equal(t, "settings", ops[0].Kind, "settings are pushed before records")
	assert.Equal(t, "save", ops[1].Kind)
	settings, ok := idx.Settings()
	require.True(t, ok)
	assert.Equal(t, searchindex.DefaultSettings(), settings)

	st, err := h.pipeline.Status(context.Background(), params.StatusKey())
	require.NoError(t, err)
	assert.Equal(t, status.Succeeded, st.State)
	assert.Equal(t, 1, st.Records)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, audit.KindInit, h.publisher.events[0].Kind)
	assert.Equal(t, []string{"page-id-en"}, h.publisher.events[0].ReindexedObjectIDs)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.FullSyncRunsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RecordsUpsertedTotal))
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(&fakeFetcher{graph: languageGraph()})

	first, err := h.pipeline.Run(context.Background(), params)
	require.NoError(t, err)
	second, err := h.pipeline.Run(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.opener.Index("A", "I").Len())
}

func TestRunAbortsOnFetchFailure(t *testing.T) {
	h := newHarness(&fakeFetcher{err: errors.New("delivery down")})

	_, err := h.pipeline.Run(context.Background(), params)
	require.Error(t, err)

	assert.Empty(t, h.opener.Index("A", "I").Writes())
	assert.Empty(t, h.publisher.events)

	st, err := h.pipeline.Status(context.Background(), params.StatusKey())
	require.NoError(t, err)
	assert.Equal(t, status.Failed, st.State)
	assert.Contains(t, st.Error, "delivery down")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.FullSyncRunsTotal.WithLabelValues("failed")))
}

func TestRunAbortsOnUpsertFailure(t *testing.T) {
	h := newHarness(&fakeFetcher{graph: languageGraph()})
	h.opener.Index("A", "I").SaveErr = errors.New("quota")

	_, err := h.pipeline.Run(context.Background(), params)
	assert.Error(t, err)
	assert.Empty(t, h.publisher.events)
}

func TestRunWithoutPagesSkipsUpsert(t *testing.T) {
	h := newHarness(&fakeFetcher{graph: content.NewGraph()})

	ids, err := h.pipeline.Run(context.Background(), params)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)

	ops := h.opener.Index("A", "I").Writes()
	require.Len(t, ops, 1)
	assert.Equal(t, "settings", ops[0].Kind)
}

func TestRunRejectsIncompleteTarget(t *testing.T) {
	h := newHarness(&fakeFetcher{graph: languageGraph()})
	p := params
	p.APIKey = ""

	_, err := h.pipeline.Run(context.Background(), p)
	assert.Error(t, err)
}

func TestConcurrentRunsCollapse(t *testing.T) {
	f := &fakeFetcher{graph: languageGraph(), release: make(chan struct{})}
	h := newHarness(f)

	var wg sync.WaitGroup
	results := make([][]string, 2)
	run := func(i int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := h.pipeline.Run(context.Background(), params)
			assert.NoError(t, err)
			results[i] = ids
		}()
	}

	run(0)
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	run(1)
	// Give the second caller time to join the in-flight run.
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, results[0], results[1])
}

// twoSlugGraph holds one page per slug element: a is a page under url_slug,
// b only under other_slug.
func twoSlugGraph() content.Graph {
	return content.NewGraph(
		content.NewItem(
			content.System{ID: "a", Codename: "a", Language: "en", Type: "page"},
			content.NamedElement{Codename: "url_slug", Element: content.SlugElement("a")},
		),
		content.NewItem(
			content.System{ID: "b", Codename: "b", Language: "en", Type: "page"},
			content.NamedElement{Codename: "other_slug", Element: content.SlugElement("b")},
		),
	)
}

func TestConcurrentRunsWithDifferentSlugsStaySeparate(t *testing.T) {
	f := &fakeFetcher{graph: twoSlugGraph(), release: make(chan struct{})}
	h := newHarness(f)

	var wg sync.WaitGroup
	results := make([][]string, 2)
	for i, slugCodename := range []string{"url_slug", "other_slug"} {
		p := params
		p.SlugCodename = slugCodename
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := h.pipeline.Run(context.Background(), p)
			assert.NoError(t, err)
			results[i] = ids
		}()
	}

	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, time.Second, time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, []string{"a-en"}, results[0])
	assert.Equal(t, []string{"b-en"}, results[1])
}

func TestCancelledCallerDoesNotAbortSharedRun(t *testing.T) {
	f := &fakeFetcher{graph: languageGraph(), release: make(chan struct{})}
	h := newHarness(f)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.pipeline.Run(firstCtx, params)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	type outcome struct {
		ids []string
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		ids, err := h.pipeline.Run(context.Background(), params)
		second <- outcome{ids, err}
	}()
	// Give the second caller time to join the in-flight run.
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(f.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, []string{"page-id-en"}, res.ids)
	assert.Equal(t, int32(1), f.calls.Load())

	st, err := h.pipeline.Status(context.Background(), params.StatusKey())
	require.NoError(t, err)
	assert.Equal(t, status.Succeeded, st.State)
}
