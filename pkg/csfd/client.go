// Package csfd scrapes a user's ratings and reviews from csfd.cz: listing
// pagination, per-entry extraction, detail-page enrichment through a
// rendered browser session and IMDb cross-references.
package csfd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// NotAvailable is written for every field that could not be found.
const NotAvailable = "N/A"

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("csfd %s: status %d", e.Path, e.Code)
}

// ClientOptions configures Client.
type ClientOptions struct {
	BaseURL   string
	Cookie    string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches plain (non-rendered) csfd.cz pages.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a new csfd.cz client. The cookie, when set, is attached to
// every request as the session credential.
func NewClient(opts ClientOptions, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	http := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		http.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Cookie != "" {
		http.SetHeader("Cookie", opts.Cookie)
	}
	return &Client{
		http:    http,
		baseURL: opts.BaseURL,
		logger:  logger,
	}
}

// BaseURL returns the site root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Document fetches path and parses the response body.
func (c *Client) Document(ctx context.Context, path string, query map[string]string) (*goquery.Document, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	c.logger.Debug("fetched page", "path", path, "query", query, "status", res.StatusCode())
	if res.IsError() {
		return nil, &StatusError{Path: path, Code: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// DetailPath is the overview page of a film.
func DetailPath(id string) string {
	return "/film/" + id + "/prehled/"
}

// FilmPath is the canonical page of a film.
func FilmPath(id string) string {
	return "/film/" + id + "/"
}

// UserPath is the profile page of a user.
func UserPath(userID int) string {
	return "/uzivatel/" + strconv.Itoa(userID) + "/"
}
