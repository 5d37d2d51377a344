// Package notify delivers end-of-run summaries to chat and webhook endpoints.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Failure is one item that did not make it, quoted in summaries.
type Failure struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// Summary describes a finished run.
type Summary struct {
	Action   string        `json:"action"`
	Status   string        `json:"status"`
	Written  int           `json:"written"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
	Failures []Failure     `json:"failures,omitempty"`
}

// Title is the one-line headline used by chat notifiers.
func (s *Summary) Title() string {
	return fmt.Sprintf("csfd2imdb %s: %s", s.Action, s.Status)
}

// Counts renders the counters.
func (s *Summary) Counts() string {
	return fmt.Sprintf("written %d | skipped %d | failed %d | took %s",
		s.Written, s.Skipped, s.Failed, s.Duration.Round(time.Second))
}

// maxQuoted bounds how many failures a chat message lists.
const maxQuoted = 5

func (s *Summary) quoted() []Failure {
	if len(s.Failures) > maxQuoted {
		return s.Failures[:maxQuoted]
	}
	return s.Failures
}

// Notifier delivers summaries to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, s *Summary) error
}

// Manager broadcasts summaries to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new notification manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends s to every notifier and joins their errors.
func (m *Manager) Broadcast(ctx context.Context, s *Summary) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func newHTTP() *resty.Client {
	return resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "csfd2imdb/1.0")
}

// post sends a JSON body and fails on any non-2xx status.
func post(ctx context.Context, rc *resty.Client, name, url string, body any, headers map[string]string) error {
	res, err := rc.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	if res.IsError() {
		return fmt.Errorf("%s status %d", name, res.StatusCode())
	}
	return nil
}
