package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     *zap.SugaredLogger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *zap.SugaredLogger) *Discord {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	// The caller's request may finish before the webhook does
	ctx = context.WithoutCancel(ctx)

	go func() {
		body, err := json.Marshal(msg)
		if err != nil {
			d.logger.Errorf("discord: failed to marshal message: %v", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
		if err != nil {
			d.logger.Errorf("discord: failed to create request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Warnf("discord: failed to send webhook: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			d.logger.Warnf("discord: webhook returned status %d", resp.StatusCode)
		}
	}()
}

// NotifyJoinFailed reports that the caption bot could not join its room.
func (d *Discord) NotifyJoinFailed(ctx context.Context, roomURL string, err error) {
	msg := discordMessage{
		Content: "@here",
		Embeds: []discordEmbed{{
			Title:       "Caption bot failed to join",
			Description: fmt.Sprintf("Joining `%s` failed. The session was not retried.", roomURL),
			Color:       0xFF0000, // Red
			Fields: []embedField{
				{Name: "Error", Value: fmt.Sprintf("`%v`", err)},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}

// NotifyTranscriptionError reports a transcription failure. The call stays up.
func (d *Discord) NotifyTranscriptionError(ctx context.Context, roomURL, detail string) {
	if detail == "" {
		detail = "no details"
	}
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Transcription error",
			Description: "Captions stopped; the call is still connected.",
			Color:       0xFFA500, // Orange
			Fields: []embedField{
				{Name: "Room", Value: roomURL, Inline: true},
				{Name: "Detail", Value: detail, Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}
