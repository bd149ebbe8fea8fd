// Package notify delivers alert messages to a configured webhook sink.
// Three sink shapes are supported: Discord embeds, Slack block kit, and LINE
// Notify. The rest of the system builds sink-neutral Messages; the configured
// type selects the wire shape.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sink type names accepted in configuration.
const (
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeLINE    = "line"
)

// maxAttempts bounds delivery attempts; retryDelays[i] precedes attempt i+2.
const maxAttempts = 3

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// Field is one labelled value in a message.
type Field struct {
	Name  string
	Value string
}

// Message is a sink-neutral notification.
type Message struct {
	Title  string
	Body   string
	URL    string
	Fields []Field
}

// Sender posts messages to one webhook URL.
type Sender struct {
	httpClient *http.Client
	webhookURL string
	sinkType   string
	log        zerolog.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewSender creates a webhook sender. An empty webhookURL produces a sender
// whose Send is a silent no-op, so callers never need to branch.
func NewSender(webhookURL, sinkType string, timeout time.Duration, log zerolog.Logger) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		httpClient: &http.Client{Timeout: timeout},
		webhookURL: webhookURL,
		sinkType:   strings.ToLower(sinkType),
		log:        log.With().Str("component", "notify").Logger(),
		sleep:      time.Sleep,
	}
}

// Enabled reports whether a webhook URL is configured.
func (s *Sender) Enabled() bool { return s.webhookURL != "" }

// Send delivers one message, retrying up to three times with increasing
// backoff. Returns the last delivery error; nil when disabled.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.Enabled() {
		return nil
	}

	body, contentType, err := s.encode(msg)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = s.post(ctx, body, contentType); lastErr == nil {
			return nil
		}
		s.log.Warn().Err(lastErr).Int("attempt", attempt).Msg("webhook delivery failed")
		if attempt < maxAttempts {
			s.sleep(retryDelays[attempt-1])
		}
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", maxAttempts, lastErr)
}

func (s *Sender) post(ctx context.Context, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if s.sinkType == TypeLINE {
		// LINE Notify authenticates with the token, not the URL.
		parts := strings.SplitN(s.webhookURL, "#", 2)
		if len(parts) == 2 {
			req.Header.Set("Authorization", "Bearer "+parts[1])
			req.URL, _ = url.Parse(parts[0])
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// encode renders a Message in the configured sink's wire shape.
func (s *Sender) encode(msg Message) ([]byte, string, error) {
	switch s.sinkType {
	case TypeSlack:
		return encodeSlack(msg)
	case TypeLINE:
		return encodeLINE(msg)
	default:
		return encodeDiscord(msg)
	}
}

func encodeDiscord(msg Message) ([]byte, string, error) {
	fields := make([]map[string]interface{}, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, map[string]interface{}{
			"name":   f.Name,
			"value":  f.Value,
			"inline": true,
		})
	}
	embed := map[string]interface{}{
		"title":       msg.Title,
		"description": msg.Body,
		"fields":      fields,
	}
	if msg.URL != "" {
		embed["url"] = msg.URL
	}
	body, err := json.Marshal(map[string]interface{}{"embeds": []interface{}{embed}})
	return body, "application/json", err
}

func encodeSlack(msg Message) ([]byte, string, error) {
	var text strings.Builder
	text.WriteString("*" + msg.Title + "*")
	if msg.Body != "" {
		text.WriteString("\n" + msg.Body)
	}

	blocks := []map[string]interface{}{{
		"type": "section",
		"text": map[string]interface{}{"type": "mrkdwn", "text": text.String()},
	}}
	if len(msg.Fields) > 0 {
		fields := make([]map[string]interface{}, 0, len(msg.Fields))
		for _, f := range msg.Fields {
			fields = append(fields, map[string]interface{}{
				"type": "mrkdwn",
				"text": "*" + f.Name + "*\n" + f.Value,
			})
		}
		blocks = append(blocks, map[string]interface{}{"type": "section", "fields": fields})
	}
	if msg.URL != "" {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{"type": "mrkdwn", "text": "<" + msg.URL + ">"},
		})
	}
	body, err := json.Marshal(map[string]interface{}{"text": text.String(), "blocks": blocks})
	return body, "application/json", err
}

func encodeLINE(msg Message) ([]byte, string, error) {
	var text strings.Builder
	text.WriteString("\n" + msg.Title)
	if msg.Body != "" {
		text.WriteString("\n" + msg.Body)
	}
	for _, f := range msg.Fields {
		fmt.Fprintf(&text, "\n%s: %s", f.Name, f.Value)
	}
	if msg.URL != "" {
		text.WriteString("\n" + msg.URL)
	}
	form := url.Values{}
	form.Set("message", text.String())
	return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
}
