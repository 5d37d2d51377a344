package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/elonfeng/csfd2imdb/internal/recordstore"
)

// ResolveLinks looks up the IMDb id of every exported rating that has no
// outcome yet. Each id lands in exactly one of the links or no-links files.
func (p *Pipeline) ResolveLinks(ctx context.Context) (*Report, error) {
	r := p.begin(ctx, ActionLinks)

	if !recordstore.Exists(p.files.Ratings) {
		return r.finish(ctx, fmt.Errorf("%s (run ratings first): %w", p.files.Ratings, ErrMissingInput))
	}
	ratings, err := recordstore.Read(p.files.Ratings, RatingsSchema.Delimiter, p.logger)
	if err != nil {
		return r.finish(ctx, err)
	}
	if ratings.Column("csfd_id") < 0 {
		return r.finish(ctx, fmt.Errorf("%s has no csfd_id column: %w", p.files.Ratings, ErrMissingInput))
	}

	found, err := recordstore.Open(p.files.Links, LinksSchema, p.logger)
	if err != nil {
		return r.finish(ctx, err)
	}
	defer found.Close()
	missing, err := recordstore.Open(p.files.NoLinks, NoLinksSchema, p.logger)
	if err != nil {
		return r.finish(ctx, err)
	}
	defer missing.Close()

	ids := ratings.Values("csfd_id")
	todo := pendingIDs(ids, found, missing)
	r.report.Total = len(todo)
	r.report.Present = len(ids) - len(todo)
	p.logger.Info("resolving links", "pending", len(todo), "resolved", found.Len(), "unresolvable", missing.Len())

	pacer := newPacer(p.pacing.Link)
	for _, id := range todo {
		if err := pacer.Wait(ctx); err != nil {
			return r.finish(ctx, err)
		}
		res := p.site.Resolve(ctx, id)
		if ctx.Err() != nil {
			return r.finish(ctx, ctx.Err())
		}

		if res.Found() {
			if err := found.Append([]string{id, res.IMDbID, res.Rating}); err != nil {
				return r.finish(ctx, fmt.Errorf("append link %s: %w", id, err))
			}
			r.written(ctx, id, "")
			p.logger.Info("resolved", "item_id", id, "imdb_id", res.IMDbID, "rating", res.Rating)
			continue
		}

		if err := missing.Append([]string{id, res.Reason, res.Rating}); err != nil {
			return r.finish(ctx, fmt.Errorf("append unresolved %s: %w", id, err))
		}
		r.skip(ctx, id, res.Reason)
	}
	return r.finish(ctx, nil)
}

// pendingIDs returns the distinct ids absent from every store, numeric ids
// first in numeric order, then the rest lexically.
func pendingIDs(ids []string, stores ...*recordstore.Store) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if slices.ContainsFunc(stores, func(s *recordstore.Store) bool { return s.Has(id) }) {
			continue
		}
		out = append(out, id)
	}
	slices.SortFunc(out, compareIDs)
	return out
}

func compareIDs(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na - nb
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
