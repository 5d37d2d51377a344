package csfd

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoCount means the listing header carried no item count. Without it the
// run has no page bound, so it is fatal.
var ErrNoCount = errors.New("no item count in listing header")

// Section is one paginated listing of a user's profile.
type Section struct {
	Name     string
	Segment  string
	PageSize int
}

var (
	// RatingsSection lists a user's ratings, 50 per page.
	RatingsSection = Section{Name: "ratings", Segment: "hodnoceni", PageSize: 50}
	// ReviewsSection lists a user's reviews, 10 per page.
	ReviewsSection = Section{Name: "reviews", Segment: "recenze", PageSize: 10}
)

// Path returns the listing root for userID.
func (s Section) Path(userID int) string {
	return UserPath(userID) + s.Segment + "/"
}

var (
	groupedCount = regexp.MustCompile(`\((\d[\d\s\x{00A0}\x{202F}]*)\)`)
	bareCount    = regexp.MustCompile(`\d+`)
)

// TotalItems parses the item count out of a listing header such as
// "Hodnocení (1 234)". A parenthesized group wins over the first bare number.
func TotalItems(header string) (int, error) {
	var digits string
	if m := groupedCount.FindStringSubmatch(header); m != nil {
		digits = m[1]
	} else if m := bareCount.FindString(header); m != "" {
		digits = m
	} else {
		return 0, fmt.Errorf("%w: %q", ErrNoCount, header)
	}

	digits = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, digits)

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrNoCount, header, err)
	}
	return n, nil
}

// PageCount returns how many listing pages hold total items.
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Total fetches the listing root and returns the section's item count.
func (c *Client) Total(ctx context.Context, s Section, userID int) (int, error) {
	doc, err := c.Document(ctx, s.Path(userID), nil)
	if err != nil {
		return 0, fmt.Errorf("fetch %s listing: %w", s.Name, err)
	}

	h2 := doc.Find("header.box-header h2").First()
	if h2.Length() == 0 {
		return 0, fmt.Errorf("%w: %s listing has no header", ErrNoCount, s.Name)
	}

	header := strings.TrimSpace(h2.Text())
	c.logger.Debug("listing header", "section", s.Name, "text", header)
	return TotalItems(header)
}

// ListingPage fetches page n (1-based) of the section.
func (c *Client) ListingPage(ctx context.Context, s Section, userID, n int) (*goquery.Document, error) {
	doc, err := c.Document(ctx, s.Path(userID), map[string]string{"page": strconv.Itoa(n)})
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %d: %w", s.Name, n, err)
	}
	return doc, nil
}
