package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Embed colors by run status.
const (
	colorOK     = 0x2ECC71
	colorFailed = 0xE74C3C
)

// Discord posts summaries to a Discord webhook as an embed.
type Discord struct {
	http       *resty.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{http: newHTTP(), webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, s *Summary) error {
	parts := []string{"**" + s.Counts() + "**"}
	if s.Message != "" {
		parts = append(parts, s.Message)
	}
	for _, f := range s.quoted() {
		parts = append(parts, fmt.Sprintf("• `%s` %s", f.ItemID, f.Reason))
	}

	color := colorOK
	if s.Status != "ok" {
		color = colorFailed
	}
	embed := map[string]any{
		"title":       s.Title(),
		"description": strings.Join(parts, "\n"),
		"color":       color,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	return post(ctx, d.http, "discord webhook", d.webhookURL, map[string]any{"embeds": []map[string]any{embed}}, nil)
}
