package searchindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/record"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/resilience"
)

const defaultHitsPerPage = 1000

// AlgoliaOpener opens Algolia indexes.
type AlgoliaOpener struct {
	timeout     time.Duration
	hitsPerPage int
}

// NewAlgoliaOpener creates an opener using the given call limits.
func NewAlgoliaOpener(cfg config.AlgoliaConfig) *AlgoliaOpener {
	hits := cfg.HitsPerPage
	if hits <= 0 || hits > defaultHitsPerPage {
		hits = defaultHitsPerPage
	}
	return &AlgoliaOpener{timeout: cfg.RequestTimeout, hitsPerPage: hits}
}

// Open returns a handle on target's index. No request is made.
func (o *AlgoliaOpener) Open(target Target) (Index, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	client := search.NewClient(target.AppID, target.APIKey)
	return &algoliaIndex{
		name:        target.IndexName,
		index:       client.InitIndex(target.IndexName),
		timeout:     o.timeout,
		hitsPerPage: o.hitsPerPage,
		logger: slog.Default().With(
			"component", "algolia-index",
			"app_id", target.AppID,
			"index", target.IndexName,
		),
	}, nil
}

type algoliaIndex struct {
	name        string
	index       *search.Index
	timeout     time.Duration
	hitsPerPage int
	logger      *slog.Logger
}

func (a *algoliaIndex) Name() string { return a.name }

func (a *algoliaIndex) SetSettings(ctx context.Context, settings Settings) error {
	return a.call(ctx, "set settings", func() error {
		res, err := a.index.SetSettings(algoliaSettings(settings))
		if err != nil {
			return err
		}
		return res.Wait()
	})
}

func (a *algoliaIndex) SaveRecords(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	err := a.call(ctx, "save records", func() error {
		res, err := a.index.SaveObjects(records)
		if err != nil {
			return err
		}
		return res.Wait()
	})
	if err == nil {
		a.logger.Debug("records saved", "count", len(records))
	}
	return err
}

func (a *algoliaIndex) DeleteRecords(ctx context.Context, objectIDs []string) error {
	if len(objectIDs) == 0 {
		return nil
	}
	err := a.call(ctx, "delete records", func() error {
		res, err := a.index.DeleteObjects(objectIDs)
		if err != nil {
			return err
		}
		return res.Wait()
	})
	if err == nil {
		a.logger.Debug("records deleted", "count", len(objectIDs))
	}
	return err
}

func (a *algoliaIndex) SearchByContentID(ctx context.Context, contentID, language string) ([]record.Record, error) {
	filters, err := ContentFilters(contentID, language)
	if err != nil {
		return nil, err
	}
	and := make([]interface{}, len(filters))
	for i, f := range filters {
		and[i] = opt.FacetFilter(f)
	}

	hits, total, err := collectPages(func(page int) (searchPage, error) {
		return callValue(ctx, a, "search by content id", func() (searchPage, error) {
			res, err := a.index.Search("",
				opt.FacetFilterAnd(and...),
				opt.HitsPerPage(a.hitsPerPage),
				opt.Page(page),
			)
			if err != nil {
				return searchPage{}, err
			}
			sp := searchPage{pages: res.NbPages, total: res.NbHits}
			if err := res.UnmarshalHits(&sp.hits); err != nil {
				return searchPage{}, fmt.Errorf("decoding hits: %w", err)
			}
			return sp, nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(hits) < total {
		a.logger.Warn("facet search truncated by the index pagination limit",
			"content_id", contentID,
			"language", language,
			"hits", total,
			"read", len(hits),
		)
	}
	return hits, nil
}

// searchPage is one page of a facet search.
type searchPage struct {
	hits  []record.Record
	pages int
	total int
}

// collectPages reads pages from fetch until the last page or an empty one.
// It returns the hits and the total the index reported.
func collectPages(fetch func(page int) (searchPage, error)) ([]record.Record, int, error) {
	var hits []record.Record
	for page := 0; ; page++ {
		sp, err := fetch(page)
		if err != nil {
			return nil, 0, err
		}
		hits = append(hits, sp.hits...)
		if len(sp.hits) == 0 || page+1 >= sp.pages {
			return hits, sp.total, nil
		}
	}
}

// call runs fn under the per-call timeout and classifies failures as
// upstream errors.
func (a *algoliaIndex) call(ctx context.Context, op string, fn func() error) error {
	_, err := callValue(ctx, a, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func callValue[T any](ctx context.Context, a *algoliaIndex, op string, fn func() (T, error)) (T, error) {
	v, err := resilience.WithTimeoutValue(ctx, a.timeout, "algolia "+op, func(context.Context) (T, error) {
		v, err := fn()
		if err != nil {
			return v, fmt.Errorf("%w: %v", apperrors.ErrUpstream, err)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s on index %s: %w", op, a.name, err)
	}
	return v, nil
}

func algoliaSettings(s Settings) search.Settings {
	var out search.Settings
	if len(s.SearchableAttributes) > 0 {
		out.SearchableAttributes = opt.SearchableAttributes(s.SearchableAttributes...)
	}
	if len(s.AttributesForFaceting) > 0 {
		out.AttributesForFaceting = opt.AttributesForFaceting(s.AttributesForFaceting...)
	}
	if len(s.AttributesToSnippet) > 0 {
		out.AttributesToSnippet = opt.AttributesToSnippet(s.AttributesToSnippet...)
	}
	return out
}
