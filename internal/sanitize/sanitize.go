// Package sanitize renders a parsed page into the content string carried by a
// bundle: either the full document or a reduced fragment of allow-listed tags.
package sanitize

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/page-bundler/internal/bundle"
)

// AllowedTags are the elements kept by clean mode.
var AllowedTags = map[string]struct{}{
	"p":  {},
	"a":  {},
	"ul": {},
	"ol": {},
	"li": {},
}

// whitespaceRun also covers Unicode separators such as U+00A0.
var whitespaceRun = regexp.MustCompile(`[\s\p{Z}\x{85}\x{1c}-\x{1f}]+`)

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Render produces the content string for mode. The document is not modified.
func Render(doc *goquery.Document, mode bundle.ContentMode) (string, error) {
	switch mode {
	case bundle.ContentModeFull:
		return Full(doc)
	case bundle.ContentModeClean, "":
		return Clean(doc)
	default:
		return "", fmt.Errorf("unknown content mode %q", mode)
	}
}

// Full serializes the entire parsed document as HTML.
func Full(doc *goquery.Document) (string, error) {
	var buf bytes.Buffer
	for _, n := range doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render document: %w", err)
		}
	}
	return buf.String(), nil
}

// Clean drops script and style elements, unwraps every element under the body
// that is not allow-listed, strips attributes from the rest and returns the
// body's contents with whitespace runs collapsed.
func Clean(doc *goquery.Document) (string, error) {
	if len(doc.Nodes) == 0 {
		return "", nil
	}
	clone := goquery.NewDocumentFromNode(doc.Selection.Clone().Nodes[0])
	clone.Find("script, style").Remove()

	start := clone.Nodes[0]
	if body := clone.Find("body").First(); body.Length() > 0 {
		start = body.Nodes[0]
	}

	// Collect first, mutate second: unwrapping while walking would skip the
	// promoted children.
	for _, n := range descendants(start) {
		switch n.Type {
		case html.ElementNode:
			if _, ok := AllowedTags[n.Data]; ok {
				n.Attr = nil
				continue
			}
			unwrap(n)
		case html.CommentNode, html.DoctypeNode:
			n.Parent.RemoveChild(n)
		}
	}

	var buf bytes.Buffer
	for c := start.FirstChild; c != nil; c = c.NextSibling {
		writeClean(&buf, c)
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(buf.String(), " ")), nil
}

func descendants(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			out = append(out, c)
			walk(c)
		}
	}
	walk(root)
	return out
}

// unwrap replaces n with its children.
func unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

// writeClean serializes the reduced tree. Only allow-listed, attribute-free
// elements and text remain at this point.
func writeClean(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(textEscaper.Replace(n.Data))
	case html.ElementNode:
		buf.WriteString("<" + n.Data + ">")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeClean(buf, c)
		}
		buf.WriteString("</" + n.Data + ">")
	}
}
