package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lmittmann/tint"

	"github.com/elonfeng/csfd2imdb/internal/config"
	"github.com/elonfeng/csfd2imdb/internal/journal"
	"github.com/elonfeng/csfd2imdb/internal/pipeline"
	"github.com/elonfeng/csfd2imdb/pkg/csfd"
	"github.com/elonfeng/csfd2imdb/pkg/imdb"
	"github.com/elonfeng/csfd2imdb/pkg/notify"
	"github.com/elonfeng/csfd2imdb/pkg/render"
)

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if userID > 0 {
		cfg.UserID = userID
	}
	return cfg, nil
}

// openJournal opens the run journal. A journal that cannot be opened only
// costs the history, so the run goes on without it.
func openJournal(cfg *config.Config, logger *slog.Logger) journal.Journal {
	if cfg.Journal.Path == "" {
		return journal.Nop{}
	}
	j, err := journal.New(cfg.Journal.Path)
	if err != nil {
		logger.Warn("journal disabled", "path", cfg.Journal.Path, "err", err)
		return journal.Nop{}
	}
	return j
}

func buildNotifier(cfg *config.Config) *notify.Manager {
	var notifiers []notify.Notifier

	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(cfg.Notify.Slack.WebhookURL))
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscord(cfg.Notify.Discord.WebhookURL))
	}
	if cfg.Notify.Webhook.Enabled && cfg.Notify.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Secret))
	}

	return notify.NewManager(notifiers)
}

func buildSite(cfg *config.Config, logger *slog.Logger) *csfd.Client {
	return csfd.NewClient(csfd.ClientOptions{
		BaseURL:   cfg.CSFD.BaseURL,
		Cookie:    cfg.CSFD.Cookie,
		UserAgent: cfg.CSFD.UserAgent,
		Timeout:   cfg.CSFD.ParseTimeout(),
	}, logger)
}

func buildEnricher(cfg *config.Config, logger *slog.Logger) *csfd.Enricher {
	fetcher := csfd.NewDetailFetcher(cfg.CSFD.BaseURL, logger)
	fetcher.ConsentTimeout = cfg.Browser.ParseConsentTimeout()
	fetcher.ContentTimeout = cfg.Browser.ParseContentTimeout()

	launch := render.NewChrome(render.ChromeOptions{
		ExecPath:        cfg.Browser.ExecPath,
		Headless:        cfg.Browser.Headless,
		UserAgent:       cfg.CSFD.UserAgent,
		NavigateTimeout: cfg.CSFD.ParseTimeout(),
	}, logger)
	return csfd.NewEnricher(fetcher, launch, logger)
}

func buildRater(cfg *config.Config, logger *slog.Logger) *imdb.Client {
	return imdb.NewClient(imdb.ClientOptions{
		URL:       cfg.IMDb.GraphQLURL,
		Cookie:    cfg.IMDb.Cookie,
		UserAgent: cfg.CSFD.UserAgent,
		Timeout:   cfg.IMDb.ParseTimeout(),
	}, logger)
}

// session bundles what every action needs and releases it in close.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	journal journal.Journal
	ctx     context.Context
	cancel  context.CancelFunc
}

func newSession() (*session, error) {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return &session{
		cfg:     cfg,
		logger:  logger,
		journal: openJournal(cfg, logger),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (s *session) close() {
	s.cancel()
	if err := s.journal.Close(); err != nil {
		s.logger.Warn("close journal", "err", err)
	}
}

func (s *session) options() pipeline.Options {
	return pipeline.Options{
		UserID:   s.cfg.UserID,
		Files:    s.cfg.Files,
		Pacing:   pipeline.PacingFromConfig(s.cfg.Pacing),
		Journal:  s.journal,
		Notifier: buildNotifier(s.cfg),
		Logger:   s.logger,
	}
}

func runExport(section csfd.Section, jsonOutput bool) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.cfg.RequireUser(); err != nil {
		return err
	}
	if s.cfg.CSFD.Cookie == "" {
		s.logger.Warn("no csfd cookie, exporting the public profile", "cookie_file", s.cfg.CSFD.CookieFile)
	}

	site := buildSite(s.cfg, s.logger)
	enricher := buildEnricher(s.cfg, s.logger)
	defer func() {
		if err := enricher.Close(); err != nil {
			s.logger.Warn("close browser", "err", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "exporting %s of %s\n", section.Name, site.UserName(s.ctx, s.cfg.UserID))

	opts := s.options()
	opts.Site = site
	opts.Enricher = enricher
	p := pipeline.New(opts)

	var rep *pipeline.Report
	if section.Name == csfd.ReviewsSection.Name {
		rep, err = p.ExportReviews(s.ctx)
	} else {
		rep, err = p.ExportRatings(s.ctx)
	}
	if rep != nil {
		fmt.Fprintf(os.Stderr, "relaunched browser %d times\n", enricher.Relaunches())
		printReport(rep, jsonOutput)
	}
	return err
}

func runLinks(jsonOutput bool) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	opts := s.options()
	opts.Site = buildSite(s.cfg, s.logger)
	rep, err := pipeline.New(opts).ResolveLinks(s.ctx)
	if rep != nil {
		printReport(rep, jsonOutput)
	}
	return err
}

func runRate(retry, jsonOutput bool) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.cfg.RequireIMDbCookie(); err != nil {
		return err
	}

	opts := s.options()
	opts.Rater = buildRater(s.cfg, s.logger)
	p := pipeline.New(opts)

	var rep *pipeline.Report
	if retry {
		rep, err = p.RetryFailed(s.ctx)
	} else {
		rep, err = p.Replicate(s.ctx)
	}
	if rep != nil {
		printReport(rep, jsonOutput)
	}
	return err
}

func runCheckCookie() error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.cfg.RequireCSFDCookie(); err != nil {
		return err
	}
	site := buildSite(s.cfg, s.logger)

	ok, err := site.CookieValid(s.ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("csfd cookie in %s is not valid, log in again and replace it", s.cfg.CSFD.CookieFile)
	}
	fmt.Println("csfd cookie is valid")
	if s.cfg.UserID > 0 {
		fmt.Printf("user: %s\n", site.UserName(s.ctx, s.cfg.UserID))
	}
	if s.cfg.IMDb.Cookie == "" {
		fmt.Printf("imdb cookie: missing (%s)\n", s.cfg.IMDb.CookieFile)
	} else {
		fmt.Println("imdb cookie: present (checked on first rate)")
	}
	return nil
}

func runHistory(jsonOutput bool, action string, limit int, runID int64) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	j, err := journal.New(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()
	ctx := context.Background()

	if runID > 0 {
		events, err := j.ListEvents(ctx, runID)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if jsonOutput {
			return printJSON(events)
		}
		if len(events) == 0 {
			fmt.Printf("run %d has no events\n", runID)
			return nil
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Time", "Item", "Kind", "Reason"})
		for _, e := range events {
			t.AppendRow(table.Row{e.CreatedAt.Local().Format(time.DateTime), e.ItemID, e.Kind, e.Reason})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	}

	runs, err := j.ListRuns(ctx, journal.RunListOpts{Action: action, Limit: limit})
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if jsonOutput {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded yet (try: csfd2imdb ratings)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Action", "Started", "Took", "Status", "Written", "Skipped", "Failed", "Message"})
	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			r.ID, r.Action, r.StartedAt.Local().Format(time.DateTime), took,
			r.Status, r.Written, r.Skipped, r.Failed, truncate(r.Message, 60),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

func printReport(rep *pipeline.Report, jsonOutput bool) {
	if jsonOutput {
		if err := printJSON(rep); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return
	}

	rule := strings.Repeat("-", 32)
	fmt.Println(rule)
	fmt.Printf("%s: %s (run %d, %s)\n", rep.Action, rep.Status, rep.RunID, rep.Duration.Round(time.Second))
	fmt.Printf("  total:    %d\n", rep.Total)
	fmt.Printf("  present:  %d\n", rep.Present)
	fmt.Printf("  written:  %d\n", rep.Written)
	fmt.Printf("  skipped:  %d\n", rep.Skipped)
	fmt.Printf("  failed:   %d\n", rep.Failed)
	if rep.Message != "" {
		fmt.Printf("  reason:   %s\n", rep.Message)
	}
	if rep.Failed > 0 && rep.RunID > 0 {
		fmt.Printf("  details:  csfd2imdb history --run %s\n", strconv.FormatInt(rep.RunID, 10))
	}
	fmt.Println(strings.Repeat("=", 32))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
