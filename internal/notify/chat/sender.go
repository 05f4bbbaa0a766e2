// Package chat provides notification delivery to chat rooms via incoming
// webhooks. The webhook URL is the stakeholder's chat contact endpoint.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "CrisisCommand"
)

// Config holds chat sender configuration. The webhook URL lives in the
// stakeholder contact record, so global configuration is minimal.
type Config struct {
	Username string
	IconURL  string
	Timeout  time.Duration
}

// Sender posts messages to incoming webhooks.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new chat sender.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

// Send posts one message to the webhook URL in target.
func (s *Sender) Send(ctx context.Context, target, subject, message string) error {
	if target == "" {
		return fmt.Errorf("webhook URL is empty")
	}

	payload := webhookPayload{
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
		Text:     fmt.Sprintf("### %s\n\n%s", subject, message),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	slog.Debug("chat message sent", "webhook", maskWebhookURL(target))
	return nil
}

// maskWebhookURL hides the webhook token when logging.
func maskWebhookURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	parts := strings.Split(u.Path, "/")
	if len(parts) > 0 && parts[len(parts)-1] != "" {
		parts[len(parts)-1] = "***"
	}
	u.Path = strings.Join(parts, "/")
	return u.String()
}
