package csfd

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testServer records every request path and serves handler.
type testServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []*http.Request
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*testServer, *Client) {
	t.Helper()
	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests = append(ts.requests, r.Clone(context.Background()))
		ts.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ClientOptions{
		BaseURL:   ts.URL,
		Cookie:    "session=abc",
		UserAgent: "csfd2imdb-test",
	}, discard())
	return ts, client
}

func (ts *testServer) paths() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []string
	for _, r := range ts.requests {
		out = append(out, r.URL.RequestURI())
	}
	return out
}

func TestTotalItems(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    int
		wantErr bool
	}{
		{name: "grouped with space", header: "Hodnocení (1 234)", want: 1234},
		{name: "grouped with nbsp", header: "Hodnocení (12\u00a0345)", want: 12345},
		{name: "grouped plain", header: "Recenze (57)", want: 57},
		{name: "bare number", header: "Hodnocení 57 filmů", want: 57},
		{name: "group wins over bare", header: "Top 10 (250)", want: 250},
		{name: "no digits", header: "Hodnocení", wantErr: true},
		{name: "empty", header: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TotalItems(tc.header)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrNoCount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 5, PageCount(237, 50))
	assert.Equal(t, 4, PageCount(200, 50))
	assert.Equal(t, 0, PageCount(0, 50))
	assert.Equal(t, 1, PageCount(1, 10))
	assert.Equal(t, 6, PageCount(57, 10))
	assert.Equal(t, 0, PageCount(10, 0))
}

func TestSectionPath(t *testing.T) {
	assert.Equal(t, "/uzivatel/7/hodnoceni/", RatingsSection.Path(7))
	assert.Equal(t, "/uzivatel/7/recenze/", ReviewsSection.Path(7))
	assert.Equal(t, 50, RatingsSection.PageSize)
	assert.Equal(t, 10, ReviewsSection.PageSize)
}

func TestClientTotal(t *testing.T) {
	ts, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><body><section>
			<header class="box-header"><h2>Hodnocení (1 234)</h2></header>
		</section></body></html>`)
	})

	total, err := client.Total(context.Background(), RatingsSection, 7)
	require.NoError(t, err)
	assert.Equal(t, 1234, total)
	assert.Equal(t, []string{"/uzivatel/7/hodnoceni/"}, ts.paths())

	req := ts.requests[0]
	assert.Equal(t, "session=abc", req.Header.Get("Cookie"))
	assert.Equal(t, "csfd2imdb-test", req.Header.Get("User-Agent"))
}

func TestClientTotalMissingCount(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<header class="box-header"><h2>Hodnocení</h2></header>`)
	})
	_, err := client.Total(context.Background(), ReviewsSection, 7)
	require.ErrorIs(t, err, ErrNoCount)

	_, client = newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><body>maintenance</body></html>`)
	})
	_, err = client.Total(context.Background(), ReviewsSection, 7)
	require.ErrorIs(t, err, ErrNoCount)
}

func TestClientListingPage(t *testing.T) {
	ts, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "4" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `<html><body><p id="page">`+r.URL.Query().Get("page")+`</p></body></html>`)
	})

	doc, err := client.ListingPage(context.Background(), RatingsSection, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, "3", doc.Find("#page").Text())

	_, err = client.ListingPage(context.Background(), RatingsSection, 7, 4)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)

	assert.Equal(t, []string{"/uzivatel/7/hodnoceni/?page=3", "/uzivatel/7/hodnoceni/?page=4"}, ts.paths())
}
