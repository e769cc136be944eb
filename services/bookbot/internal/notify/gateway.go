package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Message is one chat message pushed to a group or user.
type Message struct {
	Text string `json:"text"`
}

// Gateway delivers messages to the chat platform. Delivery failures are
// the caller's problem to log and swallow: a lost message never rolls
// back booking state.
type Gateway interface {
	Push(ctx context.Context, recipientID string, msg Message) error
	ProviderID() string
}

// WebhookGateway posts messages to the chat platform's push endpoint.
type WebhookGateway struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookGateway(url string, token string) *WebhookGateway {
	return &WebhookGateway{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (g *WebhookGateway) ProviderID() string {
	return "chat-webhook"
}

func (g *WebhookGateway) Push(ctx context.Context, recipientID string, msg Message) error {
	if g.url == "" {
		return errors.New("chat webhook url not configured")
	}
	payload := map[string]string{
		"to":   recipientID,
		"text": msg.Text,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("chat webhook returned non-2xx")
	}
	return nil
}

// NoopGateway drops every message. Used when no push channel is
// configured, typically in tests and local dev.
type NoopGateway struct{}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{}
}

func (g *NoopGateway) ProviderID() string {
	return "chat-noop"
}

func (g *NoopGateway) Push(_ context.Context, _ string, _ Message) error {
	return nil
}
