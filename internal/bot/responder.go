// Package bot bridges inbound customer messages to the conversational-AI
// collaborator and dispatches its replies.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Responder produces a reply for an inbound customer message. The reply
// generation itself lives outside this service.
type Responder interface {
	Reply(ctx context.Context, from, text string) (string, error)
}

// HTTPResponder calls an external reply-generation endpoint.
type HTTPResponder struct {
	http *resty.Client
}

// NewHTTPResponder creates a responder posting to the given endpoint.
func NewHTTPResponder(endpoint string, timeout time.Duration) *HTTPResponder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPResponder{
		http: resty.New().SetBaseURL(endpoint).SetTimeout(timeout),
	}
}

// Reply implements Responder.
func (r *HTTPResponder) Reply(ctx context.Context, from, text string) (string, error) {
	var result struct {
		Reply string `json:"reply"`
	}
	resp, err := r.http.R().SetContext(ctx).
		SetBody(map[string]string{"from": from, "text": text}).
		SetResult(&result).
		Post("")
	if err != nil {
		return "", fmt.Errorf("responder call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("responder returned %s", resp.Status())
	}
	return result.Reply, nil
}
