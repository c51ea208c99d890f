// Package reconcile merges the actions resolved for one webhook delivery and
// applies them to the index as at most one upsert and one delete.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/record"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/resolver"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/webhook"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/tracing"
)

// DefaultMaxConcurrency bounds concurrent notification resolution.
const DefaultMaxConcurrency = 8

// Resolver resolves one notification.
type Resolver interface {
	Resolve(ctx context.Context, target resolver.Target, n webhook.Notification) syncer.SyncAction
}

// Batch is the merged set of index writes for a delivery.
type Batch struct {
	Records   []record.Record
	ObjectIDs []string
}

// Empty reports whether the batch has nothing to write.
func (b Batch) Empty() bool {
	return len(b.Records) == 0 && len(b.ObjectIDs) == 0
}

// Result lists the object ids written by Apply. Both slices are non-nil.
type Result struct {
	ReIndexedObjectIDs []string `json:"reIndexedObjectIds"`
	DeletedObjectIDs   []string `json:"deletedObjectIds"`
}

// Touched returns every object id written, upserts first, without
// duplicates.
func (r Result) Touched() []string {
	seen := make(map[string]struct{}, len(r.ReIndexedObjectIDs)+len(r.DeletedObjectIDs))
	out := make([]string, 0, len(r.ReIndexedObjectIDs)+len(r.DeletedObjectIDs))
	for _, ids := range [][]string{r.ReIndexedObjectIDs, r.DeletedObjectIDs} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func emptyResult() Result {
	return Result{ReIndexedObjectIDs: []string{}, DeletedObjectIDs: []string{}}
}

// Merge reduces actions, given in notification order, to one batch.
//
// Reindexed records are keyed by codename: the last record wins and keys keep
// the order they were first seen in. Removals are deduplicated. A later
// removal of an object id cancels an earlier reindex of it, and a later
// reindex cancels an earlier removal.
func Merge(actions []syncer.SyncAction) Batch {
	var (
		keyOrder   []string
		keySeen    = make(map[string]struct{})
		byCodename = make(map[string]record.Record)
		byObjectID = make(map[string]string)

		removeOrder []string
		removeSeen  = make(map[string]struct{})
		removing    = make(map[string]bool)
	)

	for _, a := range actions {
		for _, rec := range a.RecordsToReindex {
			if prev, ok := byCodename[rec.Codename]; ok && prev.ObjectID != rec.ObjectID {
				delete(byObjectID, prev.ObjectID)
			}
			if _, ok := keySeen[rec.Codename]; !ok {
				keySeen[rec.Codename] = struct{}{}
				keyOrder = append(keyOrder, rec.Codename)
			}
			byCodename[rec.Codename] = rec
			byObjectID[rec.ObjectID] = rec.Codename
			delete(removing, rec.ObjectID)
		}
		for _, id := range a.ObjectIDsToRemove {
			if codename, ok := byObjectID[id]; ok {
				delete(byCodename, codename)
				delete(byObjectID, id)
			}
			if _, ok := removeSeen[id]; !ok {
				removeSeen[id] = struct{}{}
				removeOrder = append(removeOrder, id)
			}
			removing[id] = true
		}
	}

	var b Batch
	for _, codename := range keyOrder {
		if rec, ok := byCodename[codename]; ok {
			b.Records = append(b.Records, rec)
		}
	}
	for _, id := range removeOrder {
		if removing[id] {
			b.ObjectIDs = append(b.ObjectIDs, id)
		}
	}
	return b
}

// Batcher resolves a delivery's notifications concurrently and applies the
// merged result.
type Batcher struct {
	resolver       Resolver
	maxConcurrency int
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// New creates a Batcher. A non-positive maxConcurrency selects
// DefaultMaxConcurrency.
func New(r Resolver, maxConcurrency int, m *metrics.Metrics) *Batcher {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Batcher{
		resolver:       r,
		maxConcurrency: maxConcurrency,
		metrics:        m,
		logger:         slog.Default().With("component", "reconcile-batcher"),
	}
}

// Run resolves every notification, merges the actions in notification order
// and applies the batch to target's index.
func (b *Batcher) Run(ctx context.Context, target resolver.Target, notifications []webhook.Notification) (Result, error) {
	actions := make([]syncer.SyncAction, len(notifications))

	var g errgroup.Group
	g.SetLimit(b.maxConcurrency)
	for i, n := range notifications {
		g.Go(func() error {
			actions[i] = b.resolver.Resolve(ctx, target, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return emptyResult(), err
	}

	batch := Merge(actions)
	logger.FromContext(ctx).Info("webhook delivery resolved",
		"component", "reconcile-batcher",
		"notifications", len(notifications),
		"reindex", len(batch.Records),
		"remove", len(batch.ObjectIDs),
	)
	return b.Apply(ctx, target.Index, batch)
}

// Apply upserts the batch's records, then deletes its object ids. Empty
// writes are skipped. If the upsert fails the delete is not attempted.
func (b *Batcher) Apply(ctx context.Context, idx searchindex.Index, batch Batch) (Result, error) {
	ctx, span := tracing.StartChildSpan(ctx, "apply")
	defer span.End()

	res := emptyResult()
	if len(batch.Records) > 0 {
		if err := idx.SaveRecords(ctx, batch.Records); err != nil {
			span.SetError(err)
			return res, fmt.Errorf("upserting %d records: %w", len(batch.Records), err)
		}
		for _, rec := range batch.Records {
			res.ReIndexedObjectIDs = append(res.ReIndexedObjectIDs, rec.ObjectID)
		}
		if b.metrics != nil {
			b.metrics.RecordsUpsertedTotal.Add(float64(len(batch.Records)))
		}
	}
	if len(batch.ObjectIDs) > 0 {
		if err := idx.DeleteRecords(ctx, batch.ObjectIDs); err != nil {
			span.SetError(err)
			return res, fmt.Errorf("deleting %d records: %w", len(batch.ObjectIDs), err)
		}
		res.DeletedObjectIDs = append(res.DeletedObjectIDs, batch.ObjectIDs...)
		if b.metrics != nil {
			b.metrics.RecordsDeletedTotal.Add(float64(len(batch.ObjectIDs)))
		}
	}
	span.SetAttr("reindexed", len(res.ReIndexedObjectIDs))
	span.SetAttr("deleted", len(res.DeletedObjectIDs))
	return res, nil
}
