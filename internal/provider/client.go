// Package provider wraps the external WhatsApp-compatible REST surface.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"wabridge/internal/normalize"
)

// Connection states reported by ConnectionState.
const (
	StateConnected    = "connected"
	StateConnecting   = "connecting"
	StateDisconnected = "disconnected"
	StateNotFound     = "not_found"
)

// Client is a thin HTTP wrapper over one provider endpoint, bound to a
// (base URL, API key) pair. Obtain shared instances through Cache.
type Client struct {
	http *resty.Client
}

// NewClient creates a provider client. The timeout is the hard ceiling for
// every provider call; zero applies the 30s default.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("apikey", apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Client{http: http}
}

// FindContacts lists the provider's contacts for an instance.
func (c *Client) FindContacts(ctx context.Context, instance string) ([]normalize.RawContact, error) {
	resp, err := c.http.R().SetContext(ctx).SetBody(map[string]any{}).
		Post("/findContacts/" + instance)
	if err != nil {
		return nil, fmt.Errorf("find contacts: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("find contacts: provider returned %s", resp.Status())
	}
	var contacts []normalize.RawContact
	if err := decodeList(resp.Body(), &contacts); err != nil {
		return nil, fmt.Errorf("find contacts: %w", err)
	}
	return contacts, nil
}

// FindChats lists the provider's chats for an instance.
func (c *Client) FindChats(ctx context.Context, instance string) ([]normalize.RawChat, error) {
	resp, err := c.http.R().SetContext(ctx).SetBody(map[string]any{}).
		Post("/findChats/" + instance)
	if err != nil {
		return nil, fmt.Errorf("find chats: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("find chats: provider returned %s", resp.Status())
	}
	var chats []normalize.RawChat
	if err := decodeList(resp.Body(), &chats); err != nil {
		return nil, fmt.Errorf("find chats: %w", err)
	}
	return chats, nil
}

// FindMessages lists messages for one chat of an instance.
func (c *Client) FindMessages(ctx context.Context, instance, chatID string) ([]normalize.RawMessage, error) {
	body := map[string]any{
		"where": map[string]any{
			"key": map[string]any{"remoteJid": chatID},
		},
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).
		Post("/findMessages/" + instance)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("find messages: provider returned %s", resp.Status())
	}
	var msgs []normalize.RawMessage
	if err := decodeList(resp.Body(), &msgs); err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	return msgs, nil
}

// SendText sends a text message and returns the provider-assigned message
// id, which may be empty when the provider omits it.
func (c *Client) SendText(ctx context.Context, instance, chatID, text string) (string, error) {
	body := map[string]any{
		"number": chatID,
		"text":   text,
	}
	var result struct {
		Key normalize.RawMessageKey `json:"key"`
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&result).
		Post("/sendText/" + instance)
	if err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("send text: provider returned %s", resp.Status())
	}
	return result.Key.ID, nil
}

// ConnectionState polls the provider session state. A 404 means the
// instance does not exist provider-side (StateNotFound), which is a normal
// outcome, not an error; transport failures propagate as errors.
func (c *Client) ConnectionState(ctx context.Context, instance string) (string, error) {
	var result struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
		State string `json:"state"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).
		Get("/connectionState/" + instance)
	if err != nil {
		return "", fmt.Errorf("connection state: %w", err)
	}
	if resp.StatusCode() == 404 {
		return StateNotFound, nil
	}
	if resp.IsError() {
		return "", fmt.Errorf("connection state: provider returned %s", resp.Status())
	}
	state := result.Instance.State
	if state == "" {
		state = result.State
	}
	return mapState(state), nil
}

// Connect asks the provider to open (or resume) the instance session.
func (c *Client) Connect(ctx context.Context, instance string) error {
	resp, err := c.http.R().SetContext(ctx).Get("/connect/" + instance)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("connect: provider returned %s", resp.Status())
	}
	return nil
}

// Logout closes the provider session without deleting the instance.
func (c *Client) Logout(ctx context.Context, instance string) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/logout/" + instance)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("logout: provider returned %s", resp.Status())
	}
	return nil
}

// Delete removes the instance provider-side.
func (c *Client) Delete(ctx context.Context, instance string) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/delete/" + instance)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("delete: provider returned %s", resp.Status())
	}
	return nil
}

// mapState translates provider session states into canonical statuses.
func mapState(state string) string {
	switch state {
	case "open", "connected":
		return StateConnected
	case "connecting":
		return StateConnecting
	default:
		return StateDisconnected
	}
}

// decodeList tolerates both response shapes the provider uses for listing
// endpoints: a bare JSON array, or an object wrapping the array under a
// records key.
func decodeList(body []byte, out any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err == nil {
		return nil
	}
	var wrapped struct {
		Records  json.RawMessage `json:"records"`
		Messages struct {
			Records json.RawMessage `json:"records"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(wrapped.Records) > 0 {
		return json.Unmarshal(wrapped.Records, out)
	}
	if len(wrapped.Messages.Records) > 0 {
		return json.Unmarshal(wrapped.Messages.Records, out)
	}
	return nil
}
