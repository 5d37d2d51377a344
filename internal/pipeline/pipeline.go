// Package pipeline wires the site clients, the record stores and the journal
// into the user-facing actions. Every action is sequential and resumable: the
// record files on disk decide what is left to do.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/elonfeng/csfd2imdb/internal/config"
	"github.com/elonfeng/csfd2imdb/internal/journal"
	"github.com/elonfeng/csfd2imdb/pkg/csfd"
	"github.com/elonfeng/csfd2imdb/pkg/notify"
)

// Action names, as recorded in the journal.
const (
	ActionRatings   = "ratings"
	ActionReviews   = "reviews"
	ActionLinks     = "links"
	ActionRate      = "rate"
	ActionRateRetry = "rate-retry"
)

// ErrMissingInput means an action's input file has not been produced yet.
var ErrMissingInput = errors.New("input file missing")

// Site is the plain-fetch side of csfd.cz.
type Site interface {
	Total(ctx context.Context, s csfd.Section, userID int) (int, error)
	ListingPage(ctx context.Context, s csfd.Section, userID, n int) (*goquery.Document, error)
	Resolve(ctx context.Context, id string) csfd.Resolution
}

// Enricher fetches detail-page attributes for one film.
type Enricher interface {
	Enrich(ctx context.Context, id string) (csfd.Detail, error)
}

// Rater submits one rating to IMDb.
type Rater interface {
	Rate(ctx context.Context, titleID string, rating int) error
}

// Pacing holds the delays between remote calls. Zero disables a delay.
type Pacing struct {
	Item           time.Duration
	Page           time.Duration
	Link           time.Duration
	Rate           time.Duration
	RateLimitPause time.Duration
}

// PacingFromConfig converts the configured duration strings.
func PacingFromConfig(p config.PacingConfig) Pacing {
	return Pacing{
		Item:           p.ItemDelay(),
		Page:           p.PageDelay(),
		Link:           p.LinkDelay(),
		Rate:           p.RateDelay(),
		RateLimitPause: p.RateLimitPause(),
	}
}

// Options configures a Pipeline. Site, Enricher and Rater are only needed by
// the actions that use them.
type Options struct {
	UserID   int
	Files    config.FilesConfig
	Pacing   Pacing
	Site     Site
	Enricher Enricher
	Rater    Rater
	Journal  journal.Journal
	Notifier *notify.Manager
	Logger   *slog.Logger
	// Sleep is used for the rate-limit pause. Defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Pipeline runs the actions.
type Pipeline struct {
	userID   int
	files    config.FilesConfig
	pacing   Pacing
	site     Site
	enricher Enricher
	rater    Rater
	journal  journal.Journal
	notifier *notify.Manager
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = csfd.SleepContext
	}
	return &Pipeline{
		userID:   opts.UserID,
		files:    opts.Files,
		pacing:   opts.Pacing,
		site:     opts.Site,
		enricher: opts.Enricher,
		rater:    opts.Rater,
		journal:  opts.Journal,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		sleep:    opts.Sleep,
	}
}

// newPacer spaces successive Wait calls by every. The first call passes
// immediately.
func newPacer(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}
