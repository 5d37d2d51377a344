package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/elonfeng/csfd2imdb/internal/journal"
	"github.com/elonfeng/csfd2imdb/internal/recordstore"
	"github.com/elonfeng/csfd2imdb/pkg/csfd"
	"github.com/elonfeng/csfd2imdb/pkg/imdb"
)

// Failure messages written to the failure files.
const (
	MsgMalformedRow  = "Malformed row skipped"
	MsgInvalidRating = "Invalid CSFD rating value"
	MsgUnexpected    = "Unexpected request error"
)

// rateItem is one submission candidate.
type rateItem struct {
	csfdID string
	imdbID string
	rating string
}

// Replicate submits every resolved rating to IMDb, except those that failed
// permanently in the previous run. The failure file is recreated and ends up
// holding only this run's failures.
func (p *Pipeline) Replicate(ctx context.Context) (*Report, error) {
	r := p.begin(ctx, ActionRate)

	if !recordstore.Exists(p.files.Links) {
		return r.finish(ctx, fmt.Errorf("%s (run links first): %w", p.files.Links, ErrMissingInput))
	}
	links, err := recordstore.Read(p.files.Links, LinksSchema.Delimiter, p.logger)
	if err != nil {
		return r.finish(ctx, err)
	}

	// Read before Create truncates the same file.
	permanent, err := permanentFailures(p.files.RateFailures, p.logger)
	if err != nil {
		return r.finish(ctx, err)
	}
	if len(permanent) > 0 {
		p.logger.Info("excluding permanent failures of previous run", "count", len(permanent))
	}

	var items []rateItem
	for _, rec := range links.Records() {
		if _, skip := permanent[rec["imdb_id"]]; skip && rec["imdb_id"] != "" {
			r.report.Present++
			continue
		}
		items = append(items, rateItem{csfdID: rec["csfd_id"], imdbID: rec["imdb_id"], rating: rec["csfd_rating"]})
	}

	out, err := recordstore.Create(p.files.RateFailures, FailuresSchema, p.logger)
	if err != nil {
		return r.finish(ctx, err)
	}
	defer out.Close()

	return r.finish(ctx, p.submit(ctx, r, items, out))
}

// RetryFailed resubmits every row of the failure file and records what still
// fails in the retry failure file.
func (p *Pipeline) RetryFailed(ctx context.Context) (*Report, error) {
	r := p.begin(ctx, ActionRateRetry)

	if !recordstore.Exists(p.files.RateFailures) {
		return r.finish(ctx, fmt.Errorf("%s (nothing to retry): %w", p.files.RateFailures, ErrMissingInput))
	}
	failures, err := recordstore.Read(p.files.RateFailures, FailuresSchema.Delimiter, p.logger)
	if err != nil {
		return r.finish(ctx, err)
	}

	var items []rateItem
	for _, rec := range failures.Records() {
		items = append(items, rateItem{csfdID: rec["csfd_id"], imdbID: rec["imdb_id"], rating: rec["csfd_rating"]})
	}

	out, err := recordstore.Create(p.files.RetryFailures, FailuresSchema, p.logger)
	if err != nil {
		return r.finish(ctx, err)
	}
	defer out.Close()

	return r.finish(ctx, p.submit(ctx, r, items, out))
}

// submit rates items in order. Authentication and server errors stop the
// loop; everything else is recorded and the loop moves on.
func (p *Pipeline) submit(ctx context.Context, r *run, items []rateItem, out *recordstore.Store) error {
	r.report.Total = len(items)
	p.logger.Info("submitting ratings", "count", len(items))

	record := func(it rateItem, msg string) error {
		r.fail(ctx, it.csfdID, msg)
		if err := out.AppendRow([]string{orNA(it.csfdID), orNA(it.imdbID), orNA(it.rating), msg}); err != nil {
			return fmt.Errorf("record failure %s: %w", it.csfdID, err)
		}
		return nil
	}

	pacer := newPacer(p.pacing.Rate)
	for _, it := range items {
		if it.csfdID == "" || it.imdbID == "" || it.rating == "" {
			if err := record(it, MsgMalformedRow); err != nil {
				return err
			}
			continue
		}
		native, err := imdb.ParseNative(it.rating)
		if err != nil {
			if err := record(it, MsgInvalidRating); err != nil {
				return err
			}
			continue
		}

		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		target := imdb.ToTarget(native)
		err = p.rater.Rate(ctx, it.imdbID, target)
		if err == nil {
			r.written(ctx, it.csfdID, journal.EventReplicated)
			p.logger.Info("rated", "item_id", it.csfdID, "imdb_id", it.imdbID, "rating", target)
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if rerr := record(it, failureMessage(err)); rerr != nil {
			return rerr
		}

		var se *imdb.StatusError
		switch {
		case errors.Is(err, imdb.ErrAuth), errors.Is(err, imdb.ErrServer):
			return fmt.Errorf("rate %s: %w", it.imdbID, err)
		case errors.As(err, &se) && se.RateLimited():
			p.logger.Warn("rate limited, pausing", "item_id", it.csfdID, "pause", p.pacing.RateLimitPause)
			if err := p.sleep(ctx, p.pacing.RateLimitPause); err != nil {
				return err
			}
		}
	}
	return nil
}

// failureMessage renders err for the failure file. Rate-limit rows keep the
// marker that later runs look for.
func failureMessage(err error) string {
	var (
		se *imdb.StatusError
		ie *imdb.ItemError
	)
	switch {
	case errors.Is(err, imdb.ErrAuth):
		return imdb.ErrAuth.Error()
	case errors.As(err, &ie):
		return ie.Message
	case errors.As(err, &se):
		return se.Error()
	}
	return MsgUnexpected + ": " + err.Error()
}

// permanentFailures returns the IMDb ids of the previous run's failures that
// a retry cannot fix. A missing file means none.
func permanentFailures(path string, logger *slog.Logger) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if !recordstore.Exists(path) {
		return out, nil
	}
	t, err := recordstore.Read(path, FailuresSchema.Delimiter, logger)
	if err != nil {
		return nil, err
	}
	for _, rec := range t.Records() {
		id := rec["imdb_id"]
		if id == "" || imdb.IsRateLimitMessage(rec["error_message"]) {
			continue
		}
		out[id] = struct{}{}
	}
	return out, nil
}

func orNA(s string) string {
	if s == "" {
		return csfd.NotAvailable
	}
	return s
}
