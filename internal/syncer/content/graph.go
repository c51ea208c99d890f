package content

import (
	"encoding/json"
	"sort"
)

// Graph maps codenames to items: one root and everything reachable from it,
// or a whole language when built from the items feed. Referenced codenames
// may be absent.
type Graph map[string]*Item

// NewGraph builds a graph from items. Later items win on duplicate codenames.
func NewGraph(items ...*Item) Graph {
	g := make(Graph, len(items))
	g.Add(items...)
	return g
}

// Add inserts items, replacing any existing entry with the same codename.
func (g Graph) Add(items ...*Item) {
	for _, it := range items {
		if it == nil || it.System.Codename == "" {
			continue
		}
		g[it.System.Codename] = it
	}
}

// Merge copies every entry of other into g.
func (g Graph) Merge(other Graph) {
	for codename, it := range other {
		g[codename] = it
	}
}

// Get returns the item for codename.
func (g Graph) Get(codename string) (*Item, bool) {
	it, ok := g[codename]
	return it, ok && it != nil
}

// Codenames returns all codenames in sorted order.
func (g Graph) Codenames() []string {
	return sortedKeys(g)
}

// NamedElement pairs an element with its codename for NewItem.
type NamedElement struct {
	Codename string
	Element  Element
}

// NewItem assembles an item with elements in the given order.
func NewItem(sys System, elements ...NamedElement) *Item {
	it := &Item{System: sys, Elements: make(map[string]Element, len(elements))}
	for _, ne := range elements {
		if _, dup := it.Elements[ne.Codename]; !dup {
			it.ElementOrder = append(it.ElementOrder, ne.Codename)
		}
		it.Elements[ne.Codename] = ne.Element
	}
	return it
}

// TextElement returns a plain text element.
func TextElement(value string) Element {
	return Element{Type: ElementText, Value: mustJSON(value)}
}

// SlugElement returns a URL slug element.
func SlugElement(value string) Element {
	return Element{Type: ElementURLSlug, Value: mustJSON(value)}
}

// RichTextElement returns a rich text element linking the given codenames.
func RichTextElement(html string, linked ...string) Element {
	return Element{Type: ElementRichText, Value: mustJSON(html), ModularContent: linked}
}

// LinkedItemsElement returns a linked items element.
func LinkedItemsElement(codenames ...string) Element {
	if codenames == nil {
		codenames = []string{}
	}
	return Element{Type: ElementModularContent, Value: mustJSON(codenames)}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
