package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elonfeng/csfd2imdb/internal/config"
	"github.com/elonfeng/csfd2imdb/pkg/csfd"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFiles(dir string) config.FilesConfig {
	return config.FilesConfig{
		Ratings:       filepath.Join(dir, "csfd_ratings.csv"),
		Reviews:       filepath.Join(dir, "csfd_reviews.csv"),
		Links:         filepath.Join(dir, "csfd_imdb_links.csv"),
		NoLinks:       filepath.Join(dir, "csfd_no_imdb_link.csv"),
		RateFailures:  filepath.Join(dir, "imdb_fail.csv"),
		RetryFailures: filepath.Join(dir, "imdb_fail_retry.csv"),
	}
}

// fakeSite serves a csfd.cz lookalike over httptest and records requests.
type fakeSite struct {
	mu       sync.Mutex
	header   string
	pages    map[string]string
	films    map[string]string
	requests []string
}

func (f *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.RequestURI())
	f.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/film/") {
		page, ok := f.films[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, page)
		return
	}

	n := r.URL.Query().Get("page")
	if n == "" {
		_, _ = io.WriteString(w, `<header class="box-header"><h2>`+f.header+`</h2></header>`)
		return
	}
	page, ok := f.pages[n]
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = io.WriteString(w, page)
}

func (f *fakeSite) pageRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if strings.Contains(r, "page=") {
			out = append(out, r)
		}
	}
	return out
}

func startSite(t *testing.T, f *fakeSite) *csfd.Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return csfd.NewClient(csfd.ClientOptions{BaseURL: srv.URL}, discard())
}

func ratingsListing(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="tab-content user-tab-rating"><table>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<tr><td><a class="film-title-name" href="/film/%s-film-%s/">Film %s</a>
			<span class="info">(2001)</span></td>
			<td><span class="star-rating"><span class="stars stars-4"></span></span></td>
			<td class="date-only">01.01.2024</td></tr>`, id, id, id)
	}
	b.WriteString(`</table></div>`)
	return b.String()
}

// fakeEnricher returns a fixed detail, or an error for ids in fail.
type fakeEnricher struct {
	fail  map[string]error
	calls []string
}

func (f *fakeEnricher) Enrich(_ context.Context, id string) (csfd.Detail, error) {
	f.calls = append(f.calls, id)
	if err := f.fail[id]; err != nil {
		return csfd.Detail{}, err
	}
	return csfd.Detail{
		Countries:     "USA",
		Directors:     "Director " + id,
		OverallRating: "80%",
		Actor1:        "Actor A",
		Actor2:        csfd.NotAvailable,
	}, nil
}

// fakeRater returns scripted errors per IMDb id.
type fakeRater struct {
	errs  map[string]error
	calls []string
	sent  map[string]int
}

func (f *fakeRater) Rate(_ context.Context, titleID string, rating int) error {
	f.calls = append(f.calls, titleID)
	if f.sent == nil {
		f.sent = map[string]int{}
	}
	f.sent[titleID] = rating
	return f.errs[titleID]
}

type sleeps struct{ got []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.got = append(s.got, d)
	return nil
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

var errBoom = errors.New("boom")
