package csfd

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// cleanText collapses runs of whitespace and control characters into single
// spaces and trims the result.
func cleanText(s string) string {
	return strings.Join(strings.FieldsFunc(s, isSeparator), " ")
}

func isSeparator(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' ||
		r == '\u00a0' || r < 0x20 || r == 0x7f
}

// joinedText returns every text node under sel, each trimmed, joined by a
// single space. Nested markup such as <br>, <em> or links does not glue words
// together.
func joinedText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := cleanText(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// orNA returns s, or NotAvailable when s is empty.
func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}
