// Package record converts content graphs into search records.
//
// A page is an item with a non-empty slug. Its record carries one content
// block for the page and one for every fragment reachable from it. Traversal
// stops at other pages, so their text never leaks into this record.
package record

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/content"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/errors"
)

// Facet attribute names. Settings and the resolver's facet filters both use
// them.
const (
	AttrLanguage        = "language"
	AttrContentID       = "content.id"
	AttrContentCodename = "content.codename"
	AttrContentName     = "content.name"
	AttrContentContents = "content.contents"
	AttrName            = "name"
)

// Record is one search index object, representing one page in one language.
type Record struct {
	ObjectID   string         `json:"objectID"`
	ID         string         `json:"id"`
	Codename   string         `json:"codename"`
	Name       string         `json:"name"`
	Language   string         `json:"language"`
	Type       string         `json:"type"`
	Collection string         `json:"collection,omitempty"`
	Slug       string         `json:"slug"`
	Content    []ContentBlock `json:"content"`
}

// ContentBlock is the text contributed by one item folded into a page.
type ContentBlock struct {
	ID         string   `json:"id"`
	Codename   string   `json:"codename"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Language   string   `json:"language"`
	Collection string   `json:"collection,omitempty"`
	Parents    []string `json:"parents"`
	Contents   string   `json:"contents"`
}

// Text returns the page's aggregated text: block contents in block order.
func (r Record) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, b := range r.Content {
		if b.Contents != "" {
			parts = append(parts, b.Contents)
		}
	}
	return strings.Join(parts, " ")
}

// Codenames returns the codenames of all folded items, page first.
func (r Record) Codenames() []string {
	out := make([]string, len(r.Content))
	for i, b := range r.Content {
		out[i] = b.Codename
	}
	return out
}

// ObjectID derives the index object id from the item's cross-language id and
// the language, so converting the same page always yields the same id.
func ObjectID(itemID, language string) string {
	return itemID + "-" + language
}

// IsConvertible reports whether codename is present in graph and carries a
// non-empty slug.
func IsConvertible(graph content.Graph, codename, slugCodename string) bool {
	it, ok := graph.Get(codename)
	return ok && isPage(it, slugCodename)
}

// Convert builds the record for the page at codename. It fails with
// apperrors.ErrNotConvertible unless IsConvertible holds.
func Convert(graph content.Graph, codename, slugCodename string) (Record, error) {
	page, ok := graph.Get(codename)
	if !ok || !isPage(page, slugCodename) {
		return Record{}, fmt.Errorf("converting %s: %w", codename, apperrors.ErrNotConvertible)
	}

	rec := Record{
		ObjectID:   ObjectID(page.System.ID, page.System.Language),
		ID:         page.System.ID,
		Codename:   page.System.Codename,
		Name:       page.System.Name,
		Language:   page.System.Language,
		Type:       page.System.Type,
		Collection: page.System.Collection,
		Slug:       page.Slug(slugCodename),
	}

	type frame struct {
		codename string
		parent   string
	}
	blockIndex := make(map[string]int)
	stack := []frame{{codename: page.System.Codename}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if idx, seen := blockIndex[f.codename]; seen {
			if idx > 0 {
				rec.Content[idx].Parents = appendParent(rec.Content[idx].Parents, f.parent)
			}
			continue
		}
		it, ok := graph.Get(f.codename)
		if !ok {
			continue
		}
		if f.parent != "" && isPage(it, slugCodename) {
			continue
		}

		blockIndex[f.codename] = len(rec.Content)
		rec.Content = append(rec.Content, ContentBlock{
			ID:         it.System.ID,
			Codename:   it.System.Codename,
			Name:       it.System.Name,
			Type:       it.System.Type,
			Language:   it.System.Language,
			Collection: it.System.Collection,
			Parents:    appendParent([]string{}, f.parent),
			Contents:   strings.Join(it.Texts(), " "),
		})

		linked := it.LinkedCodenames()
		for i := len(linked) - 1; i >= 0; i-- {
			stack = append(stack, frame{codename: linked[i], parent: it.System.Codename})
		}
	}
	return rec, nil
}

func isPage(it *content.Item, slugCodename string) bool {
	return it.Slug(slugCodename) != ""
}

func appendParent(parents []string, parent string) []string {
	if parent == "" {
		return parents
	}
	for _, p := range parents {
		if p == parent {
			return parents
		}
	}
	return append(parents, parent)
}
