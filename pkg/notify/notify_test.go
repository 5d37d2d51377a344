package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	header http.Header
	body   []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.header = r.Header.Clone()
		c.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func testSummary() *Summary {
	return &Summary{
		Action:   "rate",
		Status:   "aborted",
		Written:  3,
		Skipped:  1,
		Failed:   7,
		Message:  "IMDb cookie invalid",
		Duration: 90 * time.Second,
		Failures: []Failure{
			{ItemID: "1", Reason: "a"}, {ItemID: "2", Reason: "b"}, {ItemID: "3", Reason: "c"},
			{ItemID: "4", Reason: "d"}, {ItemID: "5", Reason: "e"}, {ItemID: "6", Reason: "f"},
		},
	}
}

func TestWebhookSignsBody(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)

	require.NoError(t, NewWebhook(srv.URL, "s3cret").Send(context.Background(), testSummary()))

	assert.Equal(t, "sha256="+Sign("s3cret", got.body), got.header.Get(SignatureHeader))
	var decoded Summary
	require.NoError(t, json.Unmarshal(got.body, &decoded))
	assert.Equal(t, "rate", decoded.Action)
	assert.Len(t, decoded.Failures, 6)
}

func TestWebhookWithoutSecret(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK)
	require.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), testSummary()))
	assert.Empty(t, got.header.Get(SignatureHeader))
}

func TestSlackPayload(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK)
	require.NoError(t, NewSlack(srv.URL).Send(context.Background(), testSummary()))

	var payload struct {
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(got.body, &payload))
	require.Len(t, payload.Blocks, 3)
	assert.Equal(t, "header", payload.Blocks[0]["type"])
	assert.Contains(t, string(got.body), "csfd2imdb rate: aborted")
	assert.NotContains(t, string(got.body), "`6`")
}

func TestDiscordPayload(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	require.NoError(t, NewDiscord(srv.URL).Send(context.Background(), testSummary()))

	var payload struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
		} `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(got.body, &payload))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "csfd2imdb rate: aborted", payload.Embeds[0].Title)
	assert.Equal(t, colorFailed, payload.Embeds[0].Color)
	assert.Contains(t, payload.Embeds[0].Description, "written 3 | skipped 1 | failed 7 | took 1m30s")
}

type stubNotifier struct {
	name string
	err  error
	sent int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Send(context.Context, *Summary) error {
	s.sent++
	return s.err
}

func TestManagerBroadcastJoinsErrors(t *testing.T) {
	ok := &stubNotifier{name: "ok"}
	bad := &stubNotifier{name: "bad", err: errors.New("boom")}
	m := NewManager([]Notifier{bad, ok})

	err := m.Broadcast(context.Background(), testSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, 1, ok.sent)
	assert.Equal(t, 1, bad.sent)

	var nilManager *Manager
	assert.False(t, nilManager.HasNotifiers())
	assert.NoError(t, nilManager.Broadcast(context.Background(), testSummary()))
}

func TestNonSuccessStatus(t *testing.T) {
	srv, _ := captureServer(t, http.StatusForbidden)
	err := NewSlack(srv.URL).Send(context.Background(), testSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
