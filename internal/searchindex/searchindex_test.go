package searchindex

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/record"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/errors"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, []string{"content.contents", "content.name", "name"}, s.SearchableAttributes)
	assert.ElementsMatch(t, []string{"content.codename", "content.id", "language"}, s.AttributesForFaceting)
	assert.Equal(t, []string{"content.contents:80"}, s.AttributesToSnippet)
}

func TestAlgoliaSettingsPayload(t *testing.T) {
	data, err := json.Marshal(algoliaSettings(DefaultSettings()))
	require.NoError(t, err)

	body := string(data)
	assert.Contains(t, body, `"searchableAttributes"`)
	assert.Contains(t, body, `"attributesForFaceting"`)
	assert.Contains(t, body, `"content.contents:80"`)
	assert.Contains(t, body, `"content.id"`)
}

func TestCollectPagesReadsEveryPage(t *testing.T) {
	pages := [][]record.Record{
		{{ObjectID: "a-en"}, {ObjectID: "b-en"}},
		{{ObjectID: "c-en"}, {ObjectID: "d-en"}},
		{{ObjectID: "e-en"}},
	}
	var asked []int
	hits, total, err := collectPages(func(page int) (searchPage, error) {
		asked = append(asked, page)
		return searchPage{hits: pages[page], pages: len(pages), total: 5}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, asked)
	assert.Len(t, hits, 5)
	assert.Equal(t, 5, total)
}

func TestCollectPagesReportsTruncation(t *testing.T) {
	// The index caps reachable pages below the hit count.
	hits, total, err := collectPages(func(page int) (searchPage, error) {
		return searchPage{hits: []record.Record{{ObjectID: "p"}}, pages: 2, total: 10}, nil
	})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, 10, total)
}

func TestCollectPagesStopsOnError(t *testing.T) {
	boom := errors.New("search down")
	_, _, err := collectPages(func(page int) (searchPage, error) {
		if page == 1 {
			return searchPage{}, boom
		}
		return searchPage{hits: []record.Record{{ObjectID: "a"}}, pages: 3, total: 3}, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestContentFilters(t *testing.T) {
	filters, err := ContentFilters("abc", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"content.id:abc", "language:en"}, filters)

	_, err = ContentFilters("", "en")
	assert.ErrorIs(t, err, ErrEmptyFilter)
	_, err = ContentFilters("abc", "")
	assert.ErrorIs(t, err, ErrEmptyFilter)
}

func TestTargetValidate(t *testing.T) {
	assert.NoError(t, Target{AppID: "A", APIKey: "k", IndexName: "I"}.Validate())

	err := Target{AppID: "A"}.Validate()
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "apiKey, indexName")
}

func TestAlgoliaOpenerRejectsIncompleteTarget(t *testing.T) {
	o := NewAlgoliaOpener(config.AlgoliaConfig{HitsPerPage: 5000})
	assert.Equal(t, defaultHitsPerPage, o.hitsPerPage)

	_, err := o.Open(Target{AppID: "A", APIKey: "k"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	idx, err := o.Open(Target{AppID: "A", APIKey: "k", IndexName: "I"})
	require.NoError(t, err)
	assert.Equal(t, "I", idx.Name())
}

func rec(id, lang string, blockIDs ...string) record.Record {
	r := record.Record{ObjectID: record.ObjectID(id, lang), ID: id, Language: lang}
	r.Content = append(r.Content, record.ContentBlock{ID: id})
	for _, b := range blockIDs {
		r.Content = append(r.Content, record.ContentBlock{ID: b})
	}
	return r
}

func TestMemorySearchByContentID(t *testing.T) {
	m := NewMemory("I")
	m.Put(rec("p2", "en", "frag"), rec("p1", "en", "frag"), rec("p1", "de", "frag"), rec("p3", "en"))

	got, err := m.SearchByContentID(context.Background(), "frag", "en")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1-en", got[0].ObjectID)
	assert.Equal(t, "p2-en", got[1].ObjectID)

	got, err = m.SearchByContentID(context.Background(), "p3", "en")
	require.NoError(t, err)
	require.Len(t, got, 1)

	m.SearchErr = errors.New("boom")
	_, err = m.SearchByContentID(context.Background(), "frag", "en")
	assert.Error(t, err)
}

func TestMemoryWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("I")

	require.NoError(t, m.SetSettings(ctx, DefaultSettings()))
	require.NoError(t, m.SaveRecords(ctx, []record.Record{rec("p1", "en")}))
	require.NoError(t, m.DeleteRecords(ctx, []string{"p1-en"}))

	assert.Equal(t, 0, m.Len())
	ops := m.Writes()
	require.Len(t, ops, 3)
	assert.Equal(t, "settings", ops[0].Kind)
	assert.Equal(t, Op{Kind: "save", ObjectIDs: []string{"p1-en"}}, ops[1])
	assert.Equal(t, Op{Kind: "delete", ObjectIDs: []string{"p1-en"}}, ops[2])
}

func TestMemoryOpenerReusesIndex(t *testing.T) {
	o := NewMemoryOpener()
	a, err := o.Open(Target{AppID: "A", APIKey: "k", IndexName: "I"})
	require.NoError(t, err)
	b, err := o.Open(Target{AppID: "A", APIKey: "k", IndexName: "I"})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Same(t, o.Index("A", "I"), a)
}
