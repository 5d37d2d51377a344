package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Slack posts summaries to a Slack incoming webhook.
type Slack struct {
	http       *resty.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{http: newHTTP(), webhookURL: webhookURL}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, sum *Summary) error {
	text := "*" + sum.Counts() + "*"
	if sum.Message != "" {
		text += "\n" + sum.Message
	}
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": sum.Title()},
		},
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": text},
		},
	}

	if failures := sum.quoted(); len(failures) > 0 {
		var lines []string
		for _, f := range failures {
			lines = append(lines, fmt.Sprintf("`%s` %s", f.ItemID, f.Reason))
		}
		blocks = append(blocks, map[string]any{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": strings.Join(lines, "\n")},
			},
		})
	}

	return post(ctx, s.http, "slack webhook", s.webhookURL, map[string]any{"blocks": blocks}, nil)
}
