package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/csfd2imdb/internal/recordstore"
)

const ratingsHeader = "csfd_id;title;year;countries;directors;overall_rating;actor1;actor2;date;rating\n"

func TestResolveLinks(t *testing.T) {
	dir := t.TempDir()
	files := testFiles(dir)
	writeFile(t, files.Ratings, ratingsHeader+
		"10;A;2001;USA;X;80%;A;B;01.01.2024;80\n"+
		"2;B;2001;USA;X;80%;A;B;01.01.2024;60\n"+
		"3;C;2001;USA;X;80%;A;B;01.01.2024;40\n"+
		"4;D;2001;USA;X;80%;A;B;01.01.2024;20\n"+
		"11;E;2001;USA;X;80%;A;B;01.01.2024;100\n")
	writeFile(t, files.Links, "csfd_id,imdb_id,csfd_rating\n3,tt0000003,40\n")
	writeFile(t, files.NoLinks, "csfd_id,reason,csfd_rating\n4,No IMDb link found on page,20\n")

	site := &fakeSite{films: map[string]string{
		"/film/2/": `<a href="#close-dropdown" data-rating="60"></a>
			<a class="button button-big button-imdb" href="https://www.imdb.com/title/tt0000002/">IMDb</a>`,
		"/film/10/": `<a href="#close-dropdown" data-rating="80"></a>`,
	}}
	p := New(Options{Files: files, Site: startSite(t, site), Logger: discard()})

	rep, err := p.ResolveLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Present)
	assert.Equal(t, 1, rep.Written)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, []string{"/film/2/", "/film/10/", "/film/11/"}, site.requests)

	assert.Equal(t, "csfd_id,imdb_id,csfd_rating\n3,tt0000003,40\n2,tt0000002,60\n", readFile(t, files.Links))

	missing, err := recordstore.Read(files.NoLinks, ',', discard())
	require.NoError(t, err)
	require.Len(t, missing.Rows, 3)
	assert.Equal(t, []string{"10", "No IMDb link found on page", "80"}, missing.Rows[1])
	assert.Equal(t, "11", missing.Rows[2][0])
	assert.Contains(t, missing.Rows[2][1], "CSFD page fetch error: ")
	assert.Equal(t, "N/A", missing.Rows[2][2])

	// Every id now has exactly one outcome, so a second run does nothing.
	site.requests = nil
	rep, err = p.ResolveLinks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Total)
	assert.Empty(t, site.requests)
}

func TestResolveLinksNeedsRatings(t *testing.T) {
	p := New(Options{Files: testFiles(t.TempDir()), Logger: discard()})
	rep, err := p.ResolveLinks(context.Background())
	require.ErrorIs(t, err, ErrMissingInput)
	assert.Equal(t, "aborted", rep.Status)
}

func TestPendingIDsOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := recordstore.Open(filepath.Join(dir, "links.csv"), LinksSchema, discard())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Append([]string{"5", "tt5", "80"}))

	got := pendingIDs([]string{"100", "9", "5", "x", "9", "20"}, s)
	assert.Equal(t, []string{"9", "20", "100", "x"}, got)
}
