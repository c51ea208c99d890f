package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// componentSelector matches linked items and components embedded in rich text.
const componentSelector = `object[type="application/kenticocloud"]`

const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, td, th, tr, div, blockquote, figcaption, br"

// RichTextPlain strips rich text HTML to whitespace-normalised text. Embedded
// items are dropped; their text belongs to their own content block.
func RichTextPlain(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(componentSelector).Remove()
	doc.Find("script, style").Remove()
	doc.Find(blockSelector).AppendHtml(" ")
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// RichTextLinkedCodenames returns codenames of items embedded in rich text,
// in document order.
func RichTextLinkedCodenames(html string) []string {
	if !strings.Contains(html, "<object") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find(componentSelector).Each(func(_ int, s *goquery.Selection) {
		if codename, ok := s.Attr("data-codename"); ok && codename != "" {
			out = append(out, codename)
		}
	})
	return out
}
