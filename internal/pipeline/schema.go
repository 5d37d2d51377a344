package pipeline

import (
	"github.com/elonfeng/csfd2imdb/internal/recordstore"
	"github.com/elonfeng/csfd2imdb/pkg/csfd"
)

var (
	// RatingsSchema is the ratings export.
	RatingsSchema = recordstore.Schema{
		Columns: []string{
			"csfd_id", "title", "year", "countries", "directors",
			"overall_rating", "actor1", "actor2", "date", "rating",
		},
		Delimiter: ';',
	}

	// ReviewsSchema is the reviews export.
	ReviewsSchema = recordstore.Schema{
		Columns: []string{
			"csfd_id", "title", "year", "countries", "directors",
			"overall_rating", "actor1", "actor2", "date", "rating", "review",
		},
		Delimiter: ';',
	}

	// LinksSchema holds resolved IMDb ids.
	LinksSchema = recordstore.Schema{
		Columns:   []string{"csfd_id", "imdb_id", "csfd_rating"},
		Delimiter: ',',
	}

	// NoLinksSchema holds films without a resolvable IMDb id.
	NoLinksSchema = recordstore.Schema{
		Columns:   []string{"csfd_id", "reason", "csfd_rating"},
		Delimiter: ',',
	}

	// FailuresSchema holds failed rating submissions.
	FailuresSchema = recordstore.Schema{
		Columns:   []string{"csfd_id", "imdb_id", "csfd_rating", "error_message"},
		Delimiter: ',',
	}
)

func ratingRow(e csfd.Entry, d csfd.Detail) []string {
	return []string{
		e.ID, e.Title, e.Year, d.Countries, d.Directors,
		d.OverallRating, d.Actor1, d.Actor2, e.Date, e.Rating,
	}
}

func reviewRow(e csfd.Entry, d csfd.Detail) []string {
	return append(ratingRow(e, d), e.Review)
}
