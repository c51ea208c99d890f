// Package resolver turns one change notification into a SyncAction.
//
// The content platform exposes no reverse links, so the pages embedding a
// changed item are found through the index itself: every record carries the
// ids of the items folded into it as a facet. Resolution only reads; writes
// are left to the reconciliation step.
package resolver

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/content"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/record"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/webhook"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/tracing"
)

// Outcome labels for the notifications counter.
const (
	OutcomeIgnored = "ignored"
	OutcomeNoop    = "noop"
	OutcomeReindex = "reindex"
	OutcomeRemove  = "remove"
	OutcomeMixed   = "mixed"
)

// GraphFetcher retrieves the content graph rooted at an item. It returns an
// empty graph when the item cannot be retrieved.
type GraphFetcher interface {
	FetchItem(ctx context.Context, projectID, codename, language string) content.Graph
}

// Target is where a delivery's notifications are resolved against.
type Target struct {
	SlugCodename string
	Index        searchindex.Index
}

// Resolver resolves change notifications.
type Resolver struct {
	fetcher GraphFetcher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Resolver.
func New(fetcher GraphFetcher, m *metrics.Metrics) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		metrics: m,
		logger:  slog.Default().With("component", "change-resolver"),
	}
}

// Resolve determines which records to reindex and which to remove after the
// change described by n. It never fails: index and content platform errors
// degrade to fewer actions.
func (r *Resolver) Resolve(ctx context.Context, target Target, n webhook.Notification) syncer.SyncAction {
	if !n.IsContentItem() {
		r.count(OutcomeIgnored)
		return syncer.SyncAction{}
	}

	ctx, span := tracing.StartChildSpan(ctx, "resolve")
	defer span.End()
	sys := n.Data.System
	span.SetAttr("codename", sys.Codename)
	span.SetAttr("language", sys.Language)

	log := logger.FromContext(ctx).With(
		"component", "change-resolver",
		"codename", sys.Codename,
		"language", sys.Language,
	)
	projectID := n.Message.Environment()

	existing, err := target.Index.SearchByContentID(ctx, sys.ID, sys.Language)
	if err != nil {
		log.Warn("index search failed, treating as no existing records", "error", err)
		span.SetError(err)
		if r.metrics != nil {
			r.metrics.IndexSearchErrorsTotal.Inc()
		}
		existing = nil
	}

	var action syncer.SyncAction
	if len(existing) == 0 {
		graph := r.fetcher.FetchItem(ctx, projectID, sys.Codename, sys.Language)
		if rec, ok := convert(graph, sys.Codename, target.SlugCodename); ok {
			action.RecordsToReindex = append(action.RecordsToReindex, rec)
		} else {
			log.Debug("changed item is not an indexed page or fragment")
		}
	} else {
		for _, ex := range existing {
			graph := r.fetcher.FetchItem(ctx, projectID, ex.Codename, ex.Language)
			if rec, ok := convert(graph, ex.Codename, target.SlugCodename); ok {
				action.RecordsToReindex = append(action.RecordsToReindex, rec)
				continue
			}
			log.Info("page no longer convertible, removing record",
				"page", ex.Codename,
				"object_id", ex.ObjectID,
			)
			action.ObjectIDsToRemove = append(action.ObjectIDsToRemove, ex.ObjectID)
		}
	}

	span.SetAttr("existing_records", len(existing))
	span.SetAttr("reindex", len(action.RecordsToReindex))
	span.SetAttr("remove", len(action.ObjectIDsToRemove))
	r.count(outcome(action))
	return action
}

func convert(graph content.Graph, codename, slugCodename string) (record.Record, bool) {
	if !record.IsConvertible(graph, codename, slugCodename) {
		return record.Record{}, false
	}
	rec, err := record.Convert(graph, codename, slugCodename)
	if err != nil {
		return record.Record{}, false
	}
	return rec, true
}

func outcome(a syncer.SyncAction) string {
	switch {
	case len(a.RecordsToReindex) > 0 && len(a.ObjectIDsToRemove) > 0:
		return OutcomeMixed
	case len(a.RecordsToReindex) > 0:
		return OutcomeReindex
	case len(a.ObjectIDsToRemove) > 0:
		return OutcomeRemove
	default:
		return OutcomeNoop
	}
}

func (r *Resolver) count(outcome string) {
	if r.metrics != nil {
		r.metrics.NotificationsTotal.WithLabelValues(outcome).Inc()
	}
}
