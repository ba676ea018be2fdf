// Package notify posts a run summary to Slack when a run ends PARTIAL or
// FAILED. OK and REMEDIATED runs stay silent; nobody needs a page for a
// database that healed itself.
package notify

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/prplanit/rpmdoctor/config"
)

// Notifier posts run outcomes to a Slack incoming webhook.
type Notifier struct {
	webhookURL string
}

// New returns a Notifier, or nil if webhookURL is empty (notifications
// disabled). The webhook URL is registered for log redaction immediately,
// since it's a bearer credential embedded in a URL.
func New(webhookURL string) *Notifier {
	if webhookURL == "" {
		return nil
	}
	config.RegisterSecret(webhookURL)
	return &Notifier{webhookURL: webhookURL}
}

// RunSummary is the minimal set of fields notify needs, kept separate from
// remediate.Transcript so this package doesn't import remediate just to
// read a handful of strings.
type RunSummary struct {
	RunID         string
	Status        string
	Passes        int
	RepairActions []string
	DeadlineHit   bool
}

// Notify posts to Slack if status warrants it. A delivery failure is
// returned to the caller but never blocks the run's exit code.
func (n *Notifier) Notify(summary RunSummary) error {
	if n == nil {
		return nil
	}
	if summary.Status != "PARTIAL" && summary.Status != "FAILED" {
		return nil
	}

	color := "warning"
	if summary.Status == "FAILED" {
		color = "danger"
	}

	text := fmt.Sprintf("rpmdoctor run `%s` ended *%s* after %d pass(es).", summary.RunID, summary.Status, summary.Passes)
	if summary.DeadlineHit {
		text += " Overall deadline was hit before the run converged."
	}
	if len(summary.RepairActions) > 0 {
		text += "\nRepairs attempted: " + strings.Join(summary.RepairActions, ", ")
	}

	msg := slack.WebhookMessage{
		Attachments: []slack.Attachment{
			{
				Color: color,
				Text:  text,
			},
		},
	}

	return slack.PostWebhook(n.webhookURL, &msg)
}
