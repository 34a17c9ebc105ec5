package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

const maxRetries = 3

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	WebhookURL string
	HTTPClient *http.Client // optional
}

// Slack posts events to a Slack incoming webhook.
type Slack struct {
	url    string
	client *http.Client
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.WebhookURL == "" {
		return nil, errors.New("notify: slack webhook url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Slack{url: opts.WebhookURL, client: client}, nil
}

// Name implements Notifier.
func (s *Slack) Name() string { return "slack" }

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, ev Event) error {
	msg := Format(ev)
	payload := &slack.WebhookMessage{
		Text:        msg.Title,
		Attachments: []slack.Attachment{toAttachment(msg)},
	}
	err := retryOnRateLimit(ctx, func() error {
		return slack.PostWebhookCustomHTTPContext(ctx, s.url, s.client, payload)
	})
	if err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}

// toAttachment converts a Message to a Slack attachment.
func toAttachment(msg Message) slack.Attachment {
	att := slack.Attachment{
		Title:    msg.Title,
		Text:     msg.Body,
		Color:    msg.Color,
		Fallback: msg.Title,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slack.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries on Slack rate limit errors, waiting
// for the advertised RetryAfter or an exponential backoff.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var rle *slack.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
