package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeOptions configures the headless Chrome launcher.
type ChromeOptions struct {
	ExecPath        string
	Headless        bool
	UserAgent       string
	NavigateTimeout time.Duration
}

// NewChrome returns a Launcher that starts a fresh Chrome process per session.
// Sessions outlive the context passed to the launcher; per-call contexts only
// bound individual operations.
func NewChrome(opts ChromeOptions, logger *slog.Logger) Launcher {
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = 30 * time.Second
	}
	return func(ctx context.Context) (Session, error) {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.DisableGPU,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if !opts.Headless {
			allocOpts = append(allocOpts, chromedp.Flag("headless", false))
		}
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		if opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
		tabCtx, cancelTab := chromedp.NewContext(allocCtx)

		if err := start(ctx, tabCtx, opts.NavigateTimeout); err != nil {
			cancelTab()
			cancelAlloc()
			return nil, fmt.Errorf("start chrome: %w", err)
		}

		logger.Debug("chrome session started")
		return &chromeSession{
			tab:         tabCtx,
			cancelTab:   cancelTab,
			cancelAlloc: cancelAlloc,
			navTimeout:  opts.NavigateTimeout,
			logger:      logger,
		}, nil
	}
}

// start launches the browser on tabCtx. The browser process lives as long as
// the context of the first Run, so the start-up wait is bounded from outside
// and never through a context derived from tabCtx.
func start(ctx, tabCtx context.Context, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

type chromeSession struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	navTimeout  time.Duration
	logger      *slog.Logger
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.navTimeout, chromedp.Navigate(url))
}

func (s *chromeSession) Click(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := s.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if errors.Is(err, ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *chromeSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.navTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.tab)
	s.cancelTab()
	s.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}

// run executes actions on the tab bounded by timeout and by the caller's ctx,
// and maps failures onto ErrSessionDead and ErrTimeout.
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.tab.Err() != nil {
		return ErrSessionDead
	}

	opCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	switch {
	case err == nil:
		return nil
	case s.tab.Err() != nil, errors.Is(err, chromedp.ErrInvalidContext):
		s.logger.Debug("chrome session lost", "err", err)
		return fmt.Errorf("%w: %v", ErrSessionDead, err)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}
	return err
}
