package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/csfd2imdb/internal/journal"
	"github.com/elonfeng/csfd2imdb/internal/recordstore"
	"github.com/elonfeng/csfd2imdb/pkg/csfd"
)

func newExportPipeline(t *testing.T, site *fakeSite, enricher Enricher, files map[string]string) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	p := New(Options{
		UserID:   7,
		Files:    testFiles(dir),
		Site:     startSite(t, site),
		Enricher: enricher,
		Logger:   discard(),
	})
	for name, content := range files {
		writeFile(t, filepath.Join(dir, name), content)
	}
	return p, dir
}

func TestExportRatingsIsIdempotent(t *testing.T) {
	site := &fakeSite{
		header: "Hodnocení (3)",
		pages:  map[string]string{"1": ratingsListing("1", "2", "3")},
	}
	enricher := &fakeEnricher{}
	p, dir := newExportPipeline(t, site, enricher, nil)
	path := filepath.Join(dir, "csfd_ratings.csv")

	rep, err := p.ExportRatings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Written)
	first := readFile(t, path)

	rep, err = p.ExportRatings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Written)
	assert.Equal(t, 3, rep.Present)
	assert.Equal(t, first, readFile(t, path))
	assert.Equal(t, []string{"1", "2", "3"}, enricher.calls)

	want := "csfd_id;title;year;countries;directors;overall_rating;actor1;actor2;date;rating\n" +
		"1;Film 1;2001;USA;Director 1;80%;Actor A;N/A;01.01.2024;80\n" +
		"2;Film 2;2001;USA;Director 2;80%;Actor A;N/A;01.01.2024;80\n" +
		"3;Film 3;2001;USA;Director 3;80%;Actor A;N/A;01.01.2024;80\n"
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("ratings file mismatch (-want +got):\n%s", diff)
	}
}

func TestExportRatingsResumeWritesOnlyNewIDs(t *testing.T) {
	existing := "csfd_id;title;year;countries;directors;overall_rating;actor1;actor2;date;rating\n" +
		"1;A;2001;USA;X;80%;A;B;01.01.2024;80\n" +
		"2;B;2001;USA;X;80%;A;B;01.01.2024;80\n" +
		"3;C;2001;USA;X;80%;A;B;01.01.2024;80\n"
	site := &fakeSite{
		header: "Hodnocení (4)",
		pages:  map[string]string{"1": ratingsListing("1", "2", "3", "4")},
	}
	enricher := &fakeEnricher{}
	p, dir := newExportPipeline(t, site, enricher, map[string]string{"csfd_ratings.csv": existing})

	rep, err := p.ExportRatings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Written)
	assert.Equal(t, []string{"4"}, enricher.calls)

	got := readFile(t, filepath.Join(dir, "csfd_ratings.csv"))
	require.True(t, strings.HasPrefix(got, existing))
	assert.Equal(t, "4;Film 4;2001;USA;Director 4;80%;Actor A;N/A;01.01.2024;80\n", strings.TrimPrefix(got, existing))
}

func TestExportAbortsWithoutCount(t *testing.T) {
	site := &fakeSite{
		header: "Hodnocení",
		pages:  map[string]string{"1": ratingsListing("1")},
	}
	enricher := &fakeEnricher{}
	p, dir := newExportPipeline(t, site, enricher, nil)

	rep, err := p.ExportRatings(context.Background())
	require.ErrorIs(t, err, csfd.ErrNoCount)
	assert.Equal(t, journal.StatusAborted, rep.Status)
	assert.Empty(t, site.pageRequests())
	assert.Empty(t, enricher.calls)
	assert.False(t, recordstore.Exists(filepath.Join(dir, "csfd_ratings.csv")))
}

func TestExportSkipsFailedPagesAndItems(t *testing.T) {
	site := &fakeSite{
		header: "Hodnocení (1 01)",
		pages: map[string]string{
			// page 2 is missing and answers 500
			"1": ratingsListing("5", "6"),
			"3": ratingsListing("101"),
		},
	}
	enricher := &fakeEnricher{fail: map[string]error{"6": errBoom}}
	p, dir := newExportPipeline(t, site, enricher, nil)

	rep, err := p.ExportRatings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, journal.StatusOK, rep.Status)
	assert.Equal(t, 101, rep.Total)
	assert.Equal(t, 2, rep.Written)
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, []string{
		"/uzivatel/7/hodnoceni/?page=1",
		"/uzivatel/7/hodnoceni/?page=2",
		"/uzivatel/7/hodnoceni/?page=3",
	}, site.pageRequests())

	s, err := recordstore.Open(filepath.Join(dir, "csfd_ratings.csv"), RatingsSchema, discard())
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.Has("5"))
	assert.False(t, s.Has("6"))
	assert.True(t, s.Has("101"))
}

func TestExportReviewsQuotesReviewText(t *testing.T) {
	site := &fakeSite{
		header: "Recenze (1)",
		pages: map[string]string{"1": `<div class="tab-content">
			<div class="article-content article-content-justify">
				<a class="film-title-name" href="/film/42-x/">X</a>
				<time>05.05.2020</time>
				<div class="user-reviews-text">Good; "really" good</div>
			</div></div>`},
	}
	p, dir := newExportPipeline(t, site, &fakeEnricher{}, nil)

	rep, err := p.ExportReviews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Written)

	got := readFile(t, filepath.Join(dir, "csfd_reviews.csv"))
	assert.Contains(t, got, `42;X;N/A;USA;Director 42;80%;Actor A;N/A;05.05.2020;N/A;"Good; ""really"" good"`)

	table, err := recordstore.Read(filepath.Join(dir, "csfd_reviews.csv"), ';', discard())
	require.NoError(t, err)
	assert.Equal(t, []string{`Good; "really" good`}, table.Values("review"))
}

func TestExportJournalsOutcomes(t *testing.T) {
	site := &fakeSite{
		header: "Hodnocení (2)",
		pages:  map[string]string{"1": ratingsListing("1", "2")},
	}
	j, err := journal.New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	dir := t.TempDir()
	p := New(Options{
		UserID:   7,
		Files:    testFiles(dir),
		Site:     startSite(t, site),
		Enricher: &fakeEnricher{fail: map[string]error{"2": errBoom}},
		Journal:  j,
		Logger:   discard(),
	})

	rep, err := p.ExportRatings(context.Background())
	require.NoError(t, err)

	runs, err := j.ListRuns(context.Background(), journal.RunListOpts{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)
	assert.Equal(t, ActionRatings, runs[0].Action)
	assert.Equal(t, journal.StatusOK, runs[0].Status)
	assert.Equal(t, 1, runs[0].Written)
	assert.Equal(t, 1, runs[0].Failed)

	events, err := j.ListEvents(context.Background(), rep.RunID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "2", events[0].ItemID)
	assert.Equal(t, journal.EventFail, events[0].Kind)
	assert.Equal(t, "boom", events[0].Reason)
}
