// Package imdb submits title ratings to IMDb through its GraphQL API.
package imdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultGraphQLURL is the public IMDb GraphQL endpoint.
const DefaultGraphQLURL = "https://api.graphql.imdb.com/"

const rateMutation = "mutation UpdateTitleRating($rating: Int!, $titleId: ID!) { rateTitle(input: {rating: $rating, titleId: $titleId}) { rating { value __typename } __typename }}"

var (
	// ErrAuth means the session cookie was rejected. No further request in
	// the run can succeed.
	ErrAuth = errors.New("IMDb cookie invalid")

	// ErrServer wraps 5xx responses.
	ErrServer = errors.New("IMDb server error")

	// ErrInvalidRating means the native rating is not an integer.
	ErrInvalidRating = errors.New("invalid native rating")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	msg := "HTTP Status: " + strconv.Itoa(e.Code)
	if e.RateLimited() {
		msg += " (Rate limit exceeded)"
	}
	return msg
}

// RateLimited reports a 429 response.
func (e *StatusError) RateLimited() bool { return e.Code == http.StatusTooManyRequests }

// Unwrap lets errors.Is(err, ErrServer) match 5xx responses.
func (e *StatusError) Unwrap() error {
	if e.Code >= http.StatusInternalServerError {
		return ErrServer
	}
	return nil
}

// ItemError is a GraphQL error that only concerns the submitted title.
type ItemError struct {
	Message string
}

func (e *ItemError) Error() string { return e.Message }

// RateLimitMarker is the fragment that identifies rate-limited failures in a
// failure file. Such rows are retried by later runs.
const RateLimitMarker = "Rate limit exceeded"

// IsRateLimitMessage reports whether a recorded failure message came from a
// rate-limited attempt.
func IsRateLimitMessage(msg string) bool {
	return strings.Contains(msg, RateLimitMarker)
}

// ToTarget converts a 0-100 native rating to IMDb's 0-10 scale, truncating.
func ToTarget(native int) int {
	return native / 10
}

// ParseNative parses a stored native rating.
func ParseNative(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
	return n, nil
}

// ClientOptions configures Client.
type ClientOptions struct {
	URL       string
	Cookie    string
	UserAgent string
	Timeout   time.Duration
}

// Client submits ratings.
type Client struct {
	http   *resty.Client
	url    string
	logger *slog.Logger
}

// NewClient creates a new IMDb client.
func NewClient(opts ClientOptions, logger *slog.Logger) *Client {
	if opts.URL == "" {
		opts.URL = DefaultGraphQLURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Cookie", opts.Cookie)
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	return &Client{http: rc, url: opts.URL, logger: logger}
}

type gqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type gqlResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Rate sets the user's rating of titleID.
func (c *Client) Rate(ctx context.Context, titleID string, rating int) error {
	var out gqlResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(gqlRequest{
			Query:         rateMutation,
			OperationName: "UpdateTitleRating",
			Variables: map[string]any{
				"rating":  rating,
				"titleId": titleID,
			},
		}).
		SetResult(&out).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("rate %s: %w", titleID, err)
	}
	if res.IsError() {
		return &StatusError{Code: res.StatusCode()}
	}
	c.logger.Debug("rate response", "title_id", titleID, "status", res.StatusCode(), "errors", len(out.Errors))

	if len(out.Errors) > 0 {
		msg := out.Errors[0].Message
		if strings.Contains(msg, "Authentication") {
			return fmt.Errorf("%w: %s", ErrAuth, msg)
		}
		return &ItemError{Message: msg}
	}
	return nil
}
