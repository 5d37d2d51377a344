package csfd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/elonfeng/csfd2imdb/pkg/render"
)

const (
	consentSelector = "#didomi-notice-agree-button"
	contentSelector = "#creators"
)

// Detail holds the secondary attributes scraped from a film's detail page.
type Detail struct {
	Countries     string
	Directors     string
	OverallRating string
	Actor1        string
	Actor2        string
}

// EmptyDetail has every field set to NotAvailable.
func EmptyDetail() Detail {
	return Detail{
		Countries:     NotAvailable,
		Directors:     NotAvailable,
		OverallRating: NotAvailable,
		Actor1:        NotAvailable,
		Actor2:        NotAvailable,
	}
}

// Outcome tags a DetailResult.
type Outcome int

const (
	// OutcomeParsed means Detail is valid.
	OutcomeParsed Outcome = iota
	// OutcomeSessionDead means the browser session died; the caller must
	// replace it before fetching again.
	OutcomeSessionDead
	// OutcomeFailed means the retry ceiling was exhausted on a live session.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeParsed:
		return "parsed"
	case OutcomeSessionDead:
		return "session_dead"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// DetailResult is the result of one FetchDetail call.
type DetailResult struct {
	Outcome Outcome
	Detail  Detail
	Err     error
}

type fetchState int

const (
	stateLoading fetchState = iota
	stateConsent
	stateWaitingForContent
	stateParsed
	stateRetryable
	stateSessionDead
)

// DetailFetcher loads detail pages on a caller-owned session.
type DetailFetcher struct {
	BaseURL        string
	ConsentTimeout time.Duration
	ContentTimeout time.Duration
	// ConsentSettle is how long to let the page settle after the consent
	// overlay was dismissed.
	ConsentSettle time.Duration
	MaxAttempts   int
	// Backoff returns the pause before the next attempt, attempt being 1-based.
	Backoff func(attempt int) time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  *slog.Logger
}

// NewDetailFetcher returns a fetcher with the site's production timings.
func NewDetailFetcher(baseURL string, logger *slog.Logger) *DetailFetcher {
	return &DetailFetcher{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		ConsentTimeout: 5 * time.Second,
		ContentTimeout: 15 * time.Second,
		ConsentSettle:  time.Second,
		MaxAttempts:    3,
		Backoff:        LinearBackoff(2 * time.Second),
		Sleep:          SleepContext,
		Logger:         logger,
	}
}

// LinearBackoff returns step, 2*step, 3*step, ...
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetchDetail loads the detail page of id on s. Timeouts and missing content
// are retried with backoff; a dead session is reported immediately and never
// repaired here.
func (f *DetailFetcher) FetchDetail(ctx context.Context, s render.Session, id string) DetailResult {
	url := f.BaseURL + DetailPath(id)
	maxAttempts := max(f.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		detail, state, err := f.attempt(ctx, s, url)
		switch state {
		case stateParsed:
			return DetailResult{Outcome: OutcomeParsed, Detail: detail}
		case stateSessionDead:
			return DetailResult{Outcome: OutcomeSessionDead, Err: err}
		}

		lastErr = err
		if ctx.Err() != nil {
			return DetailResult{Outcome: OutcomeFailed, Err: ctx.Err()}
		}
		if attempt == maxAttempts {
			break
		}

		wait := f.backoff(attempt)
		f.Logger.Warn("detail page not ready, retrying",
			"item_id", id, "attempt", attempt, "wait", wait, "err", err)
		if err := f.sleep(ctx, wait); err != nil {
			return DetailResult{Outcome: OutcomeFailed, Err: err}
		}
	}
	return DetailResult{
		Outcome: OutcomeFailed,
		Err:     fmt.Errorf("detail %s: %d attempts: %w", id, maxAttempts, lastErr),
	}
}

// attempt walks one Loading -> ConsentHandling -> WaitingForContent -> Parsed
// pass and reports the terminal state.
func (f *DetailFetcher) attempt(ctx context.Context, s render.Session, url string) (Detail, fetchState, error) {
	state := stateLoading
	for {
		switch state {
		case stateLoading:
			if err := s.Navigate(ctx, url); err != nil {
				return Detail{}, classify(err), err
			}
			state = stateConsent

		case stateConsent:
			clicked, err := s.Click(ctx, consentSelector, f.ConsentTimeout)
			if errors.Is(err, render.ErrSessionDead) {
				return Detail{}, stateSessionDead, err
			}
			if err != nil {
				f.Logger.Debug("consent dismissal failed", "err", err)
			}
			if clicked && f.ConsentSettle > 0 {
				if err := f.sleep(ctx, f.ConsentSettle); err != nil {
					return Detail{}, stateRetryable, err
				}
			}
			state = stateWaitingForContent

		case stateWaitingForContent:
			if err := s.WaitFor(ctx, contentSelector, f.ContentTimeout); err != nil {
				return Detail{}, classify(err), err
			}
			page, err := s.HTML(ctx)
			if err != nil {
				return Detail{}, classify(err), err
			}
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
			if err != nil {
				return Detail{}, stateRetryable, fmt.Errorf("parse detail page: %w", err)
			}
			return ParseDetail(doc), stateParsed, nil
		}
	}
}

func classify(err error) fetchState {
	if errors.Is(err, render.ErrSessionDead) {
		return stateSessionDead
	}
	return stateRetryable
}

func (f *DetailFetcher) backoff(attempt int) time.Duration {
	if f.Backoff == nil {
		return 0
	}
	return f.Backoff(attempt)
}

func (f *DetailFetcher) sleep(ctx context.Context, d time.Duration) error {
	if f.Sleep == nil {
		return SleepContext(ctx, d)
	}
	return f.Sleep(ctx, d)
}

// ParseDetail extracts every Detail field from a rendered detail page. A
// missing field is NotAvailable, never an error.
func ParseDetail(doc *goquery.Document) Detail {
	d := EmptyDetail()
	d.Countries = Countries(doc.Find("div.origin").First())
	d.Directors = Directors(doc.Selection)
	d.OverallRating = orNA(cleanText(doc.Find("div.film-rating-average").First().Text()))
	d.Actor1, d.Actor2 = Actors(doc.Selection)
	return d
}

var (
	countryBeforeYear      = regexp.MustCompile(`^(.+?)\s*/\s*\d{4}`)
	countryBeforeCommaYear = regexp.MustCompile(`^[A-Za-z\s]+, \d{4}`)
)

// countryTextHeuristics are tried in order on the origin line's text when it
// carries no country links.
var countryTextHeuristics = []func(string) (string, bool){
	countriesBeforeYear,
	countriesBeforeSlash,
	countriesBeforeCommaYear,
}

// Countries returns the production countries from the origin line.
func Countries(origin *goquery.Selection) string {
	if origin.Length() == 0 {
		return NotAvailable
	}
	if c, ok := countriesFromLinks(origin); ok {
		return c
	}
	text := joinedText(origin)
	for _, h := range countryTextHeuristics {
		if c, ok := h(text); ok {
			return c
		}
	}
	return NotAvailable
}

func countriesFromLinks(origin *goquery.Selection) (string, bool) {
	names := linkTexts(origin.Find(`a[href*="/zeme/"]`), nil)
	if len(names) == 0 {
		return "", false
	}
	return strings.Join(names, ", "), true
}

// countriesBeforeYear matches "USA / 1994 / 142 min".
func countriesBeforeYear(text string) (string, bool) {
	m := countryBeforeYear.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return nonEmpty(m[1])
}

// countriesBeforeSlash matches "Česko / Drama".
func countriesBeforeSlash(text string) (string, bool) {
	head, _, found := strings.Cut(text, " / ")
	if !found {
		return "", false
	}
	return nonEmpty(head)
}

// countriesBeforeCommaYear matches "France, 2001".
func countriesBeforeCommaYear(text string) (string, bool) {
	if !countryBeforeCommaYear.MatchString(text) {
		return "", false
	}
	head, _, _ := strings.Cut(text, ",")
	return nonEmpty(head)
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Directors returns the linked names of the "Režie:" block.
func Directors(page *goquery.Selection) string {
	block := creatorBlock(page, "Režie:")
	if block == nil {
		return NotAvailable
	}
	names := linkTexts(block.Find(`a[href*="/tvurce/"]`), nil)
	if len(names) == 0 {
		return NotAvailable
	}
	return strings.Join(names, ", ")
}

// Actors returns the first two creator links of the "Hrají:" block, skipping
// the "více" expander.
func Actors(page *goquery.Selection) (string, string) {
	block := creatorBlock(page, "Hrají:")
	if block == nil {
		return NotAvailable, NotAvailable
	}
	names := linkTexts(block.Find(`a[href*="/tvurce/"]`), func(name string) bool {
		return name != "více"
	})
	first, second := NotAvailable, NotAvailable
	if len(names) > 0 {
		first = names[0]
	}
	if len(names) > 1 {
		second = names[1]
	}
	return first, second
}

// creatorBlock finds the element wrapping the h4 labelled heading inside the
// creators section.
func creatorBlock(page *goquery.Selection, heading string) *goquery.Selection {
	var block *goquery.Selection
	page.Find(contentSelector + " h4").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if cleanText(h.Text()) == heading {
			block = h.Parent()
			return false
		}
		return true
	})
	return block
}

func linkTexts(links *goquery.Selection, keep func(string) bool) []string {
	var names []string
	links.Each(func(_ int, a *goquery.Selection) {
		name := cleanText(a.Text())
		if name == "" || (keep != nil && !keep(name)) {
			return
		}
		names = append(names, name)
	})
	return names
}
