package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/content"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/errors"
)

const slug = "url_slug"

func page(codename, slugValue, text string, linked ...string) *content.Item {
	return content.NewItem(
		content.System{ID: codename + "-id", Name: codename, Codename: codename, Language: "en", Type: "page"},
		content.NamedElement{Codename: "title", Element: content.TextElement(text)},
		content.NamedElement{Codename: slug, Element: content.SlugElement(slugValue)},
		content.NamedElement{Codename: "children", Element: content.LinkedItemsElement(linked...)},
	)
}

func fragment(codename, text string, linked ...string) *content.Item {
	return content.NewItem(
		content.System{ID: codename + "-id", Name: codename, Codename: codename, Language: "en", Type: "fragment"},
		content.NamedElement{Codename: "body", Element: content.RichTextElement("<p>" + text + "</p>")},
		content.NamedElement{Codename: "children", Element: content.LinkedItemsElement(linked...)},
	)
}

func TestIsConvertible(t *testing.T) {
	g := content.NewGraph(
		page("home", "home", "Home"),
		page("blank", "   ", "Blank"),
		fragment("hero", "Hi"),
	)
	assert.True(t, IsConvertible(g, "home", slug))
	assert.False(t, IsConvertible(g, "blank", slug))
	assert.False(t, IsConvertible(g, "hero", slug))
	assert.False(t, IsConvertible(g, "missing", slug))
	assert.False(t, IsConvertible(g, "home", "other_slug"))
}

func TestConvertAggregatesFragments(t *testing.T) {
	g := content.NewGraph(
		page("home", "home", "Welcome", "hero", "missing", "faq"),
		fragment("hero", "Hello", "cta"),
		fragment("cta", "Click"),
		fragment("faq", "Questions", "cta"),
	)

	rec, err := Convert(g, "home", slug)
	require.NoError(t, err)

	assert.Equal(t, "home-id-en", rec.ObjectID)
	assert.Equal(t, "home", rec.Slug)
	assert.Equal(t, []string{"home", "hero", "cta", "faq"}, rec.Codenames())
	assert.Equal(t, "Welcome Hello Click Questions", rec.Text())
	assert.Empty(t, rec.Content[0].Parents)
	assert.Equal(t, []string{"hero", "faq"}, rec.Content[2].Parents)
}

func TestConvertDoesNotLeakOtherPages(t *testing.T) {
	g := content.NewGraph(
		page("home", "home", "Home text", "about", "hero"),
		page("about", "about", "About text", "team"),
		fragment("team", "Team text"),
		fragment("hero", "Hero text", "about"),
	)

	rec, err := Convert(g, "home", slug)
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "hero"}, rec.Codenames())
	assert.NotContains(t, rec.Text(), "About text")
	assert.NotContains(t, rec.Text(), "Team text")

	about, err := Convert(g, "about", slug)
	require.NoError(t, err)
	assert.Equal(t, "About text Team text", about.Text())
}

func TestConvertToleratesCycles(t *testing.T) {
	g := content.NewGraph(
		page("home", "home", "Root", "a"),
		fragment("a", "A", "b"),
		fragment("b", "B", "a", "home"),
	)

	rec, err := Convert(g, "home", slug)
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "a", "b"}, rec.Codenames())
	assert.Equal(t, []string{"home", "b"}, rec.Content[1].Parents)
	assert.Empty(t, rec.Content[0].Parents)
}

func TestConvertRejectsFragments(t *testing.T) {
	g := content.NewGraph(fragment("hero", "Hi"))
	_, err := Convert(g, "hero", slug)
	assert.ErrorIs(t, err, apperrors.ErrNotConvertible)
}

func TestObjectIDIsDeterministic(t *testing.T) {
	build := func() content.Graph {
		return content.NewGraph(page("home", "home", "v1", "hero"), fragment("hero", "x"))
	}
	first, err := Convert(build(), "home", slug)
	require.NoError(t, err)
	second, err := Convert(build(), "home", slug)
	require.NoError(t, err)

	assert.Equal(t, first.ObjectID, second.ObjectID)
	assert.Equal(t, ObjectID("home-id", "en"), first.ObjectID)
	assert.NotEqual(t, ObjectID("home-id", "en"), ObjectID("home-id", "de"))
}

func TestRecordJSONShape(t *testing.T) {
	g := content.NewGraph(page("home", "home", "Hi"))
	rec, err := Convert(g, "home", slug)
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "home-id-en", doc["objectID"])
	assert.Equal(t, "en", doc["language"])
	blocks := doc["content"].([]any)
	require.Len(t, blocks, 1)
	assert.Equal(t, "home", blocks[0].(map[string]any)["codename"])
	assert.Equal(t, "Hi", blocks[0].(map[string]any)["contents"])
}
