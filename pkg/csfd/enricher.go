package csfd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/csfd2imdb/pkg/render"
)

// Enricher owns the browser session used for detail pages and replaces it
// when it dies.
type Enricher struct {
	fetcher *DetailFetcher
	launch  render.Launcher
	session render.Session
	logger  *slog.Logger

	// MaxRelaunches bounds session replacements per item.
	MaxRelaunches int
	// RelaunchPause is slept before launching a replacement session.
	RelaunchPause time.Duration

	relaunches int
}

// NewEnricher creates an Enricher. The first session is launched lazily.
func NewEnricher(fetcher *DetailFetcher, launch render.Launcher, logger *slog.Logger) *Enricher {
	return &Enricher{
		fetcher:       fetcher,
		launch:        launch,
		logger:        logger,
		MaxRelaunches: 3,
		RelaunchPause: time.Second,
	}
}

// Relaunches reports how many sessions were replaced after dying.
func (e *Enricher) Relaunches() int { return e.relaunches }

// Enrich fetches the detail of id. An error means the item must be skipped;
// the enricher stays usable for the next item.
func (e *Enricher) Enrich(ctx context.Context, id string) (Detail, error) {
	for relaunch := 0; ; relaunch++ {
		if e.session == nil {
			s, err := e.launch(ctx)
			if err != nil {
				return Detail{}, fmt.Errorf("launch browser: %w", err)
			}
			e.session = s
		}

		res := e.fetcher.FetchDetail(ctx, e.session, id)
		switch res.Outcome {
		case OutcomeParsed:
			return res.Detail, nil
		case OutcomeFailed:
			return Detail{}, fmt.Errorf("fetch detail: %w", res.Err)
		}

		e.drop()
		if relaunch >= e.MaxRelaunches {
			return Detail{}, fmt.Errorf("fetch detail: session died %d times: %w", relaunch+1, res.Err)
		}
		e.relaunches++
		e.logger.Warn("browser session died, relaunching", "item_id", id, "relaunch", relaunch+1, "err", res.Err)
		if err := e.fetcher.sleep(ctx, e.RelaunchPause); err != nil {
			return Detail{}, err
		}
	}
}

// Close releases the current session, if any.
func (e *Enricher) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}

func (e *Enricher) drop() {
	if err := e.Close(); err != nil {
		e.logger.Debug("close dead session", "err", err)
	}
}
