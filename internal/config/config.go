package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoCredential is returned when an action needs a session token that was not supplied.
var ErrNoCredential = errors.New("credential not configured")

// Config is the root configuration.
type Config struct {
	UserID  int           `yaml:"user_id"`
	CSFD    CSFDConfig    `yaml:"csfd"`
	IMDb    IMDbConfig    `yaml:"imdb"`
	Browser BrowserConfig `yaml:"browser"`
	Files   FilesConfig   `yaml:"files"`
	Pacing  PacingConfig  `yaml:"pacing"`
	Journal JournalConfig `yaml:"journal"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// CSFDConfig configures access to csfd.cz.
type CSFDConfig struct {
	BaseURL    string `yaml:"base_url"`
	CookieFile string `yaml:"cookie_file"`
	Cookie     string `yaml:"-"`
	UserAgent  string `yaml:"user_agent"`
	Timeout    string `yaml:"timeout"`
}

// ParseTimeout returns the per-request timeout as time.Duration.
func (c CSFDConfig) ParseTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// IMDbConfig configures the IMDb GraphQL endpoint.
type IMDbConfig struct {
	GraphQLURL string `yaml:"graphql_url"`
	CookieFile string `yaml:"cookie_file"`
	Cookie     string `yaml:"-"`
	Timeout    string `yaml:"timeout"`
}

// ParseTimeout returns the per-request timeout as time.Duration.
func (c IMDbConfig) ParseTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// BrowserConfig configures the headless browser used for detail pages.
type BrowserConfig struct {
	ExecPath       string `yaml:"exec_path"` // empty = let chromedp find Chrome
	Headless       bool   `yaml:"headless"`
	ConsentTimeout string `yaml:"consent_timeout"`
	ContentTimeout string `yaml:"content_timeout"`
}

// ParseConsentTimeout returns how long to wait for the consent overlay.
func (b BrowserConfig) ParseConsentTimeout() time.Duration {
	return parseDuration(b.ConsentTimeout, 5*time.Second)
}

// ParseContentTimeout returns how long to wait for the detail page content.
func (b BrowserConfig) ParseContentTimeout() time.Duration {
	return parseDuration(b.ContentTimeout, 15*time.Second)
}

// FilesConfig names the record store files.
type FilesConfig struct {
	Ratings       string `yaml:"ratings"`
	Reviews       string `yaml:"reviews"`
	Links         string `yaml:"links"`
	NoLinks       string `yaml:"no_links"`
	RateFailures  string `yaml:"rate_failures"`
	RetryFailures string `yaml:"retry_failures"`
}

// PacingConfig holds the fixed delays between remote calls.
type PacingConfig struct {
	Item      string `yaml:"item"`
	Page      string `yaml:"page"`
	Link      string `yaml:"link"`
	Rate      string `yaml:"rate"`
	RateLimit string `yaml:"rate_limit"`
}

// ItemDelay is the pause after each enriched listing entry.
func (p PacingConfig) ItemDelay() time.Duration { return parseDuration(p.Item, 500*time.Millisecond) }

// PageDelay is the pause between listing pages.
func (p PacingConfig) PageDelay() time.Duration { return parseDuration(p.Page, 1500*time.Millisecond) }

// LinkDelay is the pause between cross-reference lookups.
func (p PacingConfig) LinkDelay() time.Duration { return parseDuration(p.Link, 2*time.Second) }

// RateDelay is the pause between rating submissions.
func (p PacingConfig) RateDelay() time.Duration { return parseDuration(p.Rate, 2*time.Second) }

// RateLimitPause is the pause after the target API answers 429.
func (p PacingConfig) RateLimitPause() time.Duration {
	return parseDuration(p.RateLimit, 60*time.Second)
}

// JournalConfig configures the SQLite run journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig configures run-summary destinations.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook summaries.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook summaries.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook summaries.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		CSFD: CSFDConfig{
			BaseURL:    "https://www.csfd.cz",
			CookieFile: "csfd_cookie.txt",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Timeout:    "30s",
		},
		IMDb: IMDbConfig{
			GraphQLURL: "https://api.graphql.imdb.com/",
			CookieFile: "imdb_cookie.txt",
			Timeout:    "30s",
		},
		Browser: BrowserConfig{
			Headless:       true,
			ConsentTimeout: "5s",
			ContentTimeout: "15s",
		},
		Files: FilesConfig{
			Ratings:       "csfd_ratings.csv",
			Reviews:       "csfd_reviews.csv",
			Links:         "csfd_imdb_links.csv",
			NoLinks:       "csfd_no_imdb_link.csv",
			RateFailures:  "imdb_fail.csv",
			RetryFailures: "imdb_fail_retry.csv",
		},
		Pacing: PacingConfig{
			Item:      "500ms",
			Page:      "1500ms",
			Link:      "2s",
			Rate:      "2s",
			RateLimit: "60s",
		},
		Journal: JournalConfig{Path: "./csfd2imdb.db"},
	}
}

// Load reads configuration from a YAML file, applies env var overrides and
// loads the credential files.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.CSFD.Cookie == "" {
		cookie, err := readCredential(cfg.CSFD.CookieFile)
		if err != nil {
			return nil, err
		}
		cfg.CSFD.Cookie = cookie
	}
	if cfg.IMDb.Cookie == "" {
		cookie, err := readCredential(cfg.IMDb.CookieFile)
		if err != nil {
			return nil, err
		}
		cfg.IMDb.Cookie = cookie
	}
	return cfg, nil
}

// RequireUser returns an error unless a user id is configured.
func (c *Config) RequireUser() error {
	if c.UserID <= 0 {
		return fmt.Errorf("csfd user id is required (use --user or CSFD_USER_ID)")
	}
	return nil
}

// RequireIMDbCookie returns ErrNoCredential unless the IMDb session token is loaded.
func (c *Config) RequireIMDbCookie() error {
	if c.IMDb.Cookie == "" {
		return fmt.Errorf("imdb cookie (%s): %w", c.IMDb.CookieFile, ErrNoCredential)
	}
	return nil
}

// RequireCSFDCookie returns ErrNoCredential unless the CSFD session token is loaded.
func (c *Config) RequireCSFDCookie() error {
	if c.CSFD.Cookie == "" {
		return fmt.Errorf("csfd cookie (%s): %w", c.CSFD.CookieFile, ErrNoCredential)
	}
	return nil
}

// readCredential returns the trimmed contents of path. A missing file is not
// an error; the action needing the credential reports it.
func readCredential(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credential %s: %w", path, err)
	}
	return strings.TrimSpace(strings.ReplaceAll(string(data), "\n", "")), nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CSFD_USER_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.UserID = id
		}
	}
	if v := os.Getenv("CSFD_COOKIE"); v != "" {
		cfg.CSFD.Cookie = v
	}
	if v := os.Getenv("IMDB_COOKIE"); v != "" {
		cfg.IMDb.Cookie = v
	}
	if v := os.Getenv("CSFD2IMDB_JOURNAL"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.Slack.WebhookURL = v
		cfg.Notify.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Notify.Discord.WebhookURL = v
		cfg.Notify.Discord.Enabled = true
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
