package csfd

import (
	"context"
	"fmt"
	"strings"
)

var settingsTitles = []string{"Nastavení - Účet", "Nastavenie - Účet"}

// UserName returns the display name of userID, taken from the profile title.
func (c *Client) UserName(ctx context.Context, userID int) string {
	fallback := fmt.Sprintf("Unknown User (ID: %d)", userID)
	doc, err := c.Document(ctx, UserPath(userID), nil)
	if err != nil {
		c.logger.Warn("fetch user profile", "user_id", userID, "err", err)
		return fallback
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	name, _, _ := strings.Cut(title, " |")
	if name = strings.TrimSpace(name); name == "" {
		return fallback
	}
	return name
}

// CookieValid reports whether the session cookie opens the account settings
// page. Anonymous requests land on a login page instead.
func (c *Client) CookieValid(ctx context.Context) (bool, error) {
	doc, err := c.Document(ctx, "/soukrome/nastaveni/", nil)
	if err != nil {
		return false, fmt.Errorf("fetch account settings: %w", err)
	}
	title := doc.Find("title").First().Text()
	for _, want := range settingsTitles {
		if strings.Contains(title, want) {
			return true, nil
		}
	}
	return false, nil
}
