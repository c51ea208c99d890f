// Package syncer holds the types shared by the sync pipelines.
package syncer

import "github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/record"

// SyncAction is the outcome of resolving one change notification.
type SyncAction struct {
	RecordsToReindex  []record.Record
	ObjectIDsToRemove []string
}

// Empty reports whether the action asks for no index writes.
func (a SyncAction) Empty() bool {
	return len(a.RecordsToReindex) == 0 && len(a.ObjectIDsToRemove) == 0
}

// InitRequest is the body of a full-sync request.
type InitRequest struct {
	ProjectID        string `json:"projectId"`
	Language         string `json:"language"`
	SlugCodename     string `json:"slugCodename"`
	AlgoliaAppID     string `json:"algoliaAppId"`
	AlgoliaIndexName string `json:"algoliaIndexName"`
}
