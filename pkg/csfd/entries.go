package csfd

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Entry is one rating or review scraped from a listing page.
type Entry struct {
	ID     string
	Title  string
	Year   string
	Date   string
	Rating string
	Review string
}

// Skip records a listing row that was dropped, for diagnostics.
type Skip struct {
	Href   string
	Reason string
}

var (
	filmIDPattern = regexp.MustCompile(`/film/(\d+)-`)
	yearPattern   = regexp.MustCompile(`\d{4}`)
)

// starValues maps the stars-N class onto the 0-100 scale.
var starValues = map[string]string{
	"stars-5": "100",
	"stars-4": "80",
	"stars-3": "60",
	"stars-2": "40",
	"stars-1": "20",
}

// ParseFilmID extracts the numeric film id from a /film/<id>-<slug>/ link.
func ParseFilmID(href string) (string, bool) {
	m := filmIDPattern.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RatingEntries extracts ratings from a ratings listing page. Rows without a
// title link are layout rows and are ignored silently; rows whose link does
// not carry a film id are reported as skips.
func RatingEntries(doc *goquery.Document) ([]Entry, []Skip) {
	var (
		entries []Entry
		skips   []Skip
	)
	doc.Find("div.tab-content.user-tab-rating tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a.film-title-name").First()
		if link.Length() == 0 {
			return
		}
		href := link.AttrOr("href", "")
		id, ok := ParseFilmID(href)
		if !ok {
			skips = append(skips, Skip{Href: href, Reason: "no film id in link"})
			return
		}
		entries = append(entries, Entry{
			ID:     id,
			Title:  orNA(cleanText(link.Text())),
			Year:   year(row),
			Date:   orNA(cleanText(row.Find("td.date-only").First().Text())),
			Rating: stars(row, "0"),
		})
	})
	return entries, skips
}

// ReviewEntries extracts reviews from a reviews listing page. The review body
// is kept verbatim apart from whitespace normalization; the record writer
// quotes it.
func ReviewEntries(doc *goquery.Document) ([]Entry, []Skip) {
	var (
		entries []Entry
		skips   []Skip
	)
	doc.Find("div.tab-content div.article-content.article-content-justify").Each(func(_ int, block *goquery.Selection) {
		link := block.Find("a.film-title-name").First()
		if link.Length() == 0 {
			skips = append(skips, Skip{Reason: "review block without title link"})
			return
		}
		href := link.AttrOr("href", "")
		id, ok := ParseFilmID(href)
		if !ok {
			skips = append(skips, Skip{Href: href, Reason: "no film id in link"})
			return
		}
		entries = append(entries, Entry{
			ID:     id,
			Title:  orNA(cleanText(link.Text())),
			Year:   year(block),
			Date:   orNA(cleanText(block.Find("time").First().Text())),
			Rating: stars(block, NotAvailable),
			Review: orNA(joinedText(block.Find("div.user-reviews-text").First())),
		})
	})
	return entries, skips
}

// year reads the parenthesized release year, e.g. "(1994)".
func year(sel *goquery.Selection) string {
	info := sel.Find("span.info").First()
	if info.Length() == 0 {
		return NotAvailable
	}
	if y := yearPattern.FindString(info.Text()); y != "" {
		return y
	}
	return NotAvailable
}

// stars maps the star-rating widget onto the 0-100 scale. The stars-N class
// sits on the widget itself on review pages and on a nested span on rating
// pages; both are accepted.
func stars(sel *goquery.Selection, fallback string) string {
	widget := sel.Find("span.star-rating").First()
	if widget.Length() == 0 {
		return fallback
	}
	candidates := widget.AddSelection(widget.Find("span.stars"))
	value := fallback
	candidates.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, class := range strings.Fields(s.AttrOr("class", "")) {
			if v, ok := starValues[class]; ok {
				value = v
				return false
			}
		}
		return true
	})
	return value
}
