package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/elonfeng/csfd2imdb/internal/recordstore"
	"github.com/elonfeng/csfd2imdb/pkg/csfd"
)

// exportJob binds a listing section to its extractor and record layout.
type exportJob struct {
	action  string
	section csfd.Section
	schema  recordstore.Schema
	path    string
	extract func(*goquery.Document) ([]csfd.Entry, []csfd.Skip)
	row     func(csfd.Entry, csfd.Detail) []string
}

// ExportRatings exports the user's ratings into the ratings file, resuming
// after whatever the file already holds.
func (p *Pipeline) ExportRatings(ctx context.Context) (*Report, error) {
	return p.export(ctx, exportJob{
		action:  ActionRatings,
		section: csfd.RatingsSection,
		schema:  RatingsSchema,
		path:    p.files.Ratings,
		extract: csfd.RatingEntries,
		row:     ratingRow,
	})
}

// ExportReviews exports the user's reviews into the reviews file, resuming
// after whatever the file already holds.
func (p *Pipeline) ExportReviews(ctx context.Context) (*Report, error) {
	return p.export(ctx, exportJob{
		action:  ActionReviews,
		section: csfd.ReviewsSection,
		schema:  ReviewsSchema,
		path:    p.files.Reviews,
		extract: csfd.ReviewEntries,
		row:     reviewRow,
	})
}

func (p *Pipeline) export(ctx context.Context, job exportJob) (*Report, error) {
	r := p.begin(ctx, job.action)

	// The count bounds the page walk; without it nothing else is touched.
	total, err := p.site.Total(ctx, job.section, p.userID)
	if err != nil {
		return r.finish(ctx, fmt.Errorf("count %s: %w", job.section.Name, err))
	}
	pages := csfd.PageCount(total, job.section.PageSize)
	r.report.Total = total

	store, err := recordstore.Open(job.path, job.schema, p.logger)
	if err != nil {
		return r.finish(ctx, err)
	}
	defer store.Close()

	p.logger.Info("exporting", "section", job.section.Name, "total", total,
		"pages", pages, "already_exported", store.Len())

	pagePacer := newPacer(p.pacing.Page)
	itemPacer := newPacer(p.pacing.Item)

	for n := 1; n <= pages; n++ {
		if err := pagePacer.Wait(ctx); err != nil {
			return r.finish(ctx, err)
		}
		doc, err := p.site.ListingPage(ctx, job.section, p.userID, n)
		if err != nil {
			if ctx.Err() != nil {
				return r.finish(ctx, ctx.Err())
			}
			r.fail(ctx, "page:"+strconv.Itoa(n), err.Error())
			continue
		}

		entries, skips := job.extract(doc)
		for _, s := range skips {
			r.skip(ctx, s.Href, s.Reason)
		}
		p.logger.Debug("listing page", "section", job.section.Name, "page", n, "entries", len(entries))

		for _, e := range entries {
			if store.Has(e.ID) {
				r.report.Present++
				continue
			}
			if err := itemPacer.Wait(ctx); err != nil {
				return r.finish(ctx, err)
			}

			detail, err := p.enricher.Enrich(ctx, e.ID)
			if err != nil {
				if ctx.Err() != nil {
					return r.finish(ctx, ctx.Err())
				}
				r.fail(ctx, e.ID, err.Error())
				continue
			}

			if err := store.Append(job.row(e, detail)); err != nil {
				if errors.Is(err, recordstore.ErrDuplicate) {
					r.skip(ctx, e.ID, "listed twice")
					continue
				}
				return r.finish(ctx, fmt.Errorf("append %s: %w", e.ID, err))
			}
			r.written(ctx, e.ID, "")
			p.logger.Info("exported", "item_id", e.ID, "title", e.Title, "rating", e.Rating)
		}
	}

	if store.Len() < total {
		p.logger.Warn("export incomplete, re-run to resume", "section", job.section.Name,
			"stored", store.Len(), "total", total)
	}
	return r.finish(ctx, nil)
}
