package source

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// NoiseSelector matches elements dropped before text extraction.
const NoiseSelector = "script, style, iframe, noscript"

var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "ul": {}, "ol": {}, "tr": {}, "td": {}, "th": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "pre": {}, "blockquote": {},
	"article": {}, "section": {}, "header": {}, "footer": {}, "table": {}, "hr": {}, "figure": {},
}

// Text returns the visible text under sel, one line per block element,
// with blank lines and surrounding spaces removed.
func Text(sel *goquery.Selection) string {
	sel = sel.Clone()
	sel.Find(NoiseSelector).Remove()

	var sb strings.Builder
	for _, n := range sel.Nodes {
		walk(n, &sb)
	}
	return tidy(sb.String())
}

// HTMLToText parses a fragment or document and returns its text.
func HTMLToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return tidy(fragment)
	}
	return Text(doc.Selection)
}

func walk(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if _, ok := blockElements[n.Data]; ok {
			sb.WriteByte('\n')
			defer sb.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb)
	}
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
