// Package content models content items as returned by the Delivery API and
// the codename-keyed graphs built from them.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Element types the sync engine understands.
const (
	ElementText           = "text"
	ElementRichText       = "rich_text"
	ElementModularContent = "modular_content"
	ElementURLSlug        = "url_slug"
)

// System is the item metadata block.
type System struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Codename     string    `json:"codename"`
	Language     string    `json:"language"`
	Type         string    `json:"type"`
	Collection   string    `json:"collection"`
	LastModified time.Time `json:"last_modified"`
}

// Element is one named value of an item. Value stays raw because its shape
// depends on Type.
type Element struct {
	Type           string          `json:"type"`
	Name           string          `json:"name"`
	Value          json.RawMessage `json:"value"`
	ModularContent []string        `json:"modular_content,omitempty"`
}

// String returns the element value when it is a JSON string.
func (e Element) String() string {
	var s string
	if err := json.Unmarshal(e.Value, &s); err != nil {
		return ""
	}
	return s
}

// Codenames returns the element value when it is a list of codenames.
func (e Element) Codenames() []string {
	var cs []string
	if err := json.Unmarshal(e.Value, &cs); err != nil {
		return nil
	}
	return cs
}

// Item is a single content item. Elements keep the order the platform sent
// them in, which is the content type's element order.
type Item struct {
	System       System
	Elements     map[string]Element
	ElementOrder []string
}

type itemJSON struct {
	System   System          `json:"system"`
	Elements json.RawMessage `json:"elements"`
}

// UnmarshalJSON decodes an item while recording element order.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw itemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	it.System = raw.System
	it.Elements = make(map[string]Element)
	it.ElementOrder = nil
	if len(raw.Elements) == 0 || string(raw.Elements) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw.Elements, &it.Elements); err != nil {
		return fmt.Errorf("decoding elements of %s: %w", raw.System.Codename, err)
	}
	order, err := objectKeys(raw.Elements)
	if err != nil {
		return fmt.Errorf("reading element order of %s: %w", raw.System.Codename, err)
	}
	it.ElementOrder = order
	return nil
}

// MarshalJSON writes the item in Delivery API shape.
func (it Item) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"system":`)
	sys, err := json.Marshal(it.System)
	if err != nil {
		return nil, err
	}
	buf.Write(sys)
	buf.WriteString(`,"elements":{`)
	for i, name := range it.orderedNames() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		el, err := json.Marshal(it.Elements[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(el)
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// Slug returns the trimmed value of the slug element, or "".
func (it *Item) Slug(slugCodename string) string {
	el, ok := it.Elements[slugCodename]
	if !ok {
		return ""
	}
	return strings.TrimSpace(el.String())
}

// Texts returns the textual content of the item's text and rich text
// elements, in element order, skipping empty ones.
func (it *Item) Texts() []string {
	var out []string
	for _, name := range it.orderedNames() {
		el := it.Elements[name]
		var text string
		switch el.Type {
		case ElementText:
			text = strings.Join(strings.Fields(el.String()), " ")
		case ElementRichText:
			text = RichTextPlain(el.String())
		}
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

// LinkedCodenames returns the codenames of items this item links to through
// linked-items elements and rich text, in element order, without duplicates.
func (it *Item) LinkedCodenames() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(codenames []string) {
		for _, c := range codenames {
			if c == "" {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	for _, name := range it.orderedNames() {
		el := it.Elements[name]
		switch el.Type {
		case ElementModularContent:
			add(el.Codenames())
		case ElementRichText:
			add(RichTextLinkedCodenames(el.String()))
			add(el.ModularContent)
		}
	}
	return out
}

// orderedNames falls back to sorted keys for items built in code without an
// explicit order.
func (it *Item) orderedNames() []string {
	if len(it.ElementOrder) == len(it.Elements) {
		return it.ElementOrder
	}
	return sortedKeys(it.Elements)
}

func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
