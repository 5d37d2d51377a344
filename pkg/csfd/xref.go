package csfd

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Reasons recorded for unresolved cross-references.
const (
	ReasonFetchError = "CSFD page fetch error"
	ReasonNoLink     = "No IMDb link found on page"
	ReasonBadLink    = "IMDb ID parsing error (regex mismatch)"
)

var imdbIDPattern = regexp.MustCompile(`/title/(tt\d+)/`)

// Resolution is the cross-reference outcome for one film.
type Resolution struct {
	ID     string
	IMDbID string
	Rating string
	Reason string
}

// Found reports whether an IMDb id was resolved.
func (r Resolution) Found() bool { return r.IMDbID != "" }

// ParseIMDbID extracts a tt-prefixed id from an IMDb title link.
func ParseIMDbID(link string) (string, bool) {
	m := imdbIDPattern.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseCrossRef reads the user's own rating and the IMDb link of a film page.
func ParseCrossRef(id string, doc *goquery.Document) Resolution {
	res := Resolution{ID: id, Rating: NotAvailable}
	if v := strings.TrimSpace(doc.Find(`a[href="#close-dropdown"]`).First().AttrOr("data-rating", "")); v != "" {
		res.Rating = v
	}

	link, ok := doc.Find("a.button.button-big.button-imdb").First().Attr("href")
	if !ok || link == "" {
		res.Reason = ReasonNoLink
		return res
	}
	imdbID, ok := ParseIMDbID(link)
	if !ok {
		res.Reason = ReasonBadLink
		return res
	}
	res.IMDbID = imdbID
	return res
}

// Resolve fetches the film page of id and resolves its IMDb id. Every failure
// is folded into a not-found Resolution with a reason.
func (c *Client) Resolve(ctx context.Context, id string) Resolution {
	doc, err := c.Document(ctx, FilmPath(id), nil)
	if err != nil {
		return Resolution{ID: id, Rating: NotAvailable, Reason: ReasonFetchError + ": " + err.Error()}
	}
	return ParseCrossRef(id, doc)
}
