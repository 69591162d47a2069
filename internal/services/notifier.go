package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
)

const notifyBodyPreviewLimit = 200

// Notifier dispatches best-effort side effects for high-value emails: a Slack
// incoming-webhook message and a raw JSON webhook, each independently
// optional. Single attempt per target, failures are logged only; a
// notification failure never affects indexing or pipeline continuation.
type Notifier struct {
	slackWebhookURL    string
	externalWebhookURL string
	httpClient         *http.Client
	logs               *LogService
}

// NewNotifier creates a new Notifier instance
func NewNotifier(slackWebhookURL, externalWebhookURL string, logs *LogService) *Notifier {
	return &Notifier{
		slackWebhookURL:    slackWebhookURL,
		externalWebhookURL: externalWebhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logs: logs,
	}
}

// Configured returns whether at least one target is set
func (n *Notifier) Configured() bool {
	return n.slackWebhookURL != "" || n.externalWebhookURL != ""
}

// Notify fires all configured targets for one email. Errors are logged and
// swallowed.
func (n *Notifier) Notify(ctx context.Context, email *models.Email) {
	if n.slackWebhookURL != "" {
		if err := n.sendSlack(ctx, email); err != nil {
			n.logs.LogError(email.AccountID, models.LogModuleNotify, "slack", "Slack notification failed", map[string]interface{}{
				"doc_id": email.DocID,
				"error":  err.Error(),
			})
		} else {
			n.logs.LogInfo(email.AccountID, models.LogModuleNotify, "slack", "Sent Slack notification", map[string]interface{}{
				"doc_id": email.DocID,
			})
		}
	}

	if n.externalWebhookURL != "" {
		if err := n.sendWebhook(ctx, email); err != nil {
			n.logs.LogError(email.AccountID, models.LogModuleNotify, "webhook", "External webhook failed", map[string]interface{}{
				"doc_id": email.DocID,
				"error":  err.Error(),
			})
		} else {
			n.logs.LogInfo(email.AccountID, models.LogModuleNotify, "webhook", "Triggered external webhook", map[string]interface{}{
				"doc_id": email.DocID,
			})
		}
	}
}

// slackBlock is one block of a Slack message payload
type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// sendSlack posts a structured block message to the Slack incoming webhook
func (n *Notifier) sendSlack(ctx context.Context, email *models.Email) error {
	var toAddrs []string
	if email.ToAddrs != "" {
		json.Unmarshal([]byte(email.ToAddrs), &toAddrs)
	}

	preview := email.Body
	if len(preview) > notifyBodyPreviewLimit {
		preview = preview[:notifyBodyPreviewLimit] + "..."
	}

	payload := struct {
		Text   string       `json:"text"`
		Blocks []slackBlock `json:"blocks"`
	}{
		Text: "New Interested Email Received!",
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: "New Interested Email!"},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: "*Subject:* " + email.Subject},
					{Type: "mrkdwn", Text: "*From:* " + email.FromAddr},
					{Type: "mrkdwn", Text: "*To:* " + strings.Join(toAddrs, ", ")},
					{Type: "mrkdwn", Text: "*Date:* " + email.Date.Format(time.RFC1123)},
				},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: "*Body:*\n" + preview},
			},
		},
	}

	return n.postJSON(ctx, n.slackWebhookURL, payload)
}

// sendWebhook posts the full canonical email as raw JSON
func (n *Notifier) sendWebhook(ctx context.Context, email *models.Email) error {
	return n.postJSON(ctx, n.externalWebhookURL, email)
}

// postJSON performs a single JSON POST; non-2xx counts as failure
func (n *Notifier) postJSON(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
