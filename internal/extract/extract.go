// Package extract derives titles and meta information from a parsed page.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Fallback values used when a page carries no usable title or description.
const (
	TitleNotFound           = "Title not found"
	MetaDescriptionNotFound = "Meta description not found"
)

// Metadata groups every field the extractor derives from a document.
type Metadata struct {
	PageTitle       string
	MetaTitle       string
	MetaDescription string
	MetaTags        map[string]string
}

// Extract runs the page title, meta and all-meta extractors in order.
func Extract(doc *goquery.Document) Metadata {
	pageTitle := PageTitle(doc)
	metaTitle, metaDescription := Meta(doc, pageTitle)
	return Metadata{
		PageTitle:       pageTitle,
		MetaTitle:       metaTitle,
		MetaDescription: metaDescription,
		MetaTags:        AllMeta(doc),
	}
}

// PageTitle returns the first h1's text, else the title element's text, else
// TitleNotFound.
func PageTitle(doc *goquery.Document) string {
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		if text := StrippedText(h1); text != "" {
			return text
		}
	}
	if title := doc.Find("title").First(); title.Length() > 0 {
		if text := StrippedText(title); text != "" {
			return text
		}
	}
	return TitleNotFound
}

// Meta resolves the meta title (og:title, then name=title, then the
// fallback) and the meta description.
func Meta(doc *goquery.Document, fallbackTitle string) (string, string) {
	title := fallbackTitle
	for _, selector := range []string{`meta[property="og:title"]`, `meta[name="title"]`} {
		if content := metaContent(doc, selector); content != "" {
			title = content
			break
		}
	}

	description := metaContent(doc, `meta[name="description"]`)
	if description == "" {
		description = MetaDescriptionNotFound
	}
	return title, description
}

// AllMeta maps every meta tag's name (or property) to its trimmed content.
// Tags without a key or content are skipped; later keys overwrite earlier ones.
func AllMeta(doc *goquery.Document) map[string]string {
	tags := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("name", "")
		if key == "" {
			key = s.AttrOr("property", "")
		}
		content := s.AttrOr("content", "")
		if key == "" || content == "" {
			return
		}
		tags[key] = strings.TrimSpace(content)
	})
	return tags
}

// StrippedText concatenates the trimmed text nodes under the selection,
// skipping those that are only whitespace.
func StrippedText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}
