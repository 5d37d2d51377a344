package render

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chromePath finds a local Chrome or skips the test.
func chromePath(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary found (set CHROME_PATH)")
	return ""
}

func TestChromeSessionSurvivesLaunch(t *testing.T) {
	launch := NewChrome(ChromeOptions{
		ExecPath:        chromePath(t),
		Headless:        true,
		NavigateTimeout: 30 * time.Second,
	}, discard())

	launchCtx, cancel := context.WithCancel(context.Background())
	s, err := launch(launchCtx)
	require.NoError(t, err)
	defer s.Close()
	cancel()

	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "about:blank"))
	html, err := s.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "<html")

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Navigate(ctx, "about:blank"), ErrSessionDead)
}

func TestChromeLaunchFailure(t *testing.T) {
	launch := NewChrome(ChromeOptions{
		ExecPath:        filepath.Join(t.TempDir(), "no-chrome"),
		Headless:        true,
		NavigateTimeout: 10 * time.Second,
	}, discard())

	s, err := launch(context.Background())
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "start chrome")
}
