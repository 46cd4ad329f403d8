package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/forest-guardian/field-indices-cli/internal/config"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

const (
	colorRed   = 16711680
	colorGreen = 65280
)

// Notifier posts run outcomes to Discord webhooks. An empty URL disables
// the matching notification.
type Notifier struct {
	errorURL   string
	successURL string
	client     *http.Client
}

func NewNotifier(cfg config.NotificationConfig) *Notifier {
	return &Notifier{
		errorURL:   cfg.DiscordErrorURL,
		successURL: cfg.DiscordSuccessURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) SendError(ctx context.Context, errorMessage string) error {
	return n.send(ctx, n.errorURL, DiscordEmbed{
		Title:       "🚨 Error Notification",
		Description: fmt.Sprintf("Annual indices run failed.\n\nAn error occurred: %s", errorMessage),
		Color:       colorRed,
	})
}

func (n *Notifier) SendSuccess(ctx context.Context, successMessage string) error {
	return n.send(ctx, n.successURL, DiscordEmbed{
		Title:       "✅ Success Notification",
		Description: fmt.Sprintf("Annual indices run finished.\n\n%s", successMessage),
		Color:       colorGreen,
	})
}

func (n *Notifier) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}

	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return eris.Wrap(err, "notification: marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notification: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notification: post")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return eris.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}

	return nil
}
