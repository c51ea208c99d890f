// Package searchindex is the boundary to the search service: index settings,
// record upserts and deletes, and the facet search that finds the pages
// embedding a content item.
package searchindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/errors"
)

// Index is one search index.
type Index interface {
	Name() string
	SetSettings(ctx context.Context, settings Settings) error
	SaveRecords(ctx context.Context, records []record.Record) error
	DeleteRecords(ctx context.Context, objectIDs []string) error
	// SearchByContentID returns the records whose content blocks include
	// contentID, restricted to language.
	SearchByContentID(ctx context.Context, contentID, language string) ([]record.Record, error)
}

// Target identifies an index of a search application.
type Target struct {
	AppID     string
	APIKey    string
	IndexName string
}

// Validate reports which target fields are empty.
func (t Target) Validate() error {
	var missing []string
	if strings.TrimSpace(t.AppID) == "" {
		missing = append(missing, "appId")
	}
	if strings.TrimSpace(t.APIKey) == "" {
		missing = append(missing, "apiKey")
	}
	if strings.TrimSpace(t.IndexName) == "" {
		missing = append(missing, "indexName")
	}
	if len(missing) > 0 {
		return fmt.Errorf("search target missing %s: %w", strings.Join(missing, ", "), apperrors.ErrInvalidInput)
	}
	return nil
}

// Opener opens indexes by target.
type Opener interface {
	Open(target Target) (Index, error)
}

// Settings is the searchable, faceting and snippet configuration of an index.
type Settings struct {
	SearchableAttributes  []string
	AttributesForFaceting []string
	AttributesToSnippet   []string
}

// DefaultSettings returns the configuration every synced index carries.
func DefaultSettings() Settings {
	return Settings{
		SearchableAttributes: []string{
			record.AttrContentContents,
			record.AttrContentName,
			record.AttrName,
		},
		AttributesForFaceting: []string{
			record.AttrContentCodename,
			record.AttrContentID,
			record.AttrLanguage,
		},
		AttributesToSnippet: []string{
			record.AttrContentContents + ":80",
		},
	}
}

// ErrEmptyFilter is returned when a facet search is attempted without a
// content id or language.
var ErrEmptyFilter = errors.New("facet filter value is empty")

// FacetFilter renders one facet filter expression.
func FacetFilter(attribute, value string) string {
	return attribute + ":" + value
}

// ContentFilters returns the conjunctive facet filters that select the
// records embedding contentID in language.
func ContentFilters(contentID, language string) ([]string, error) {
	if contentID == "" || language == "" {
		return nil, fmt.Errorf("content id %q language %q: %w", contentID, language, ErrEmptyFilter)
	}
	return []string{
		FacetFilter(record.AttrContentID, contentID),
		FacetFilter(record.AttrLanguage, language),
	}, nil
}
