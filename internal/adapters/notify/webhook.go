// Package notify delivers out-of-band messages to the user. The webhook
// backend POSTs multipart payloads to a user-configured URL (a chat-bot relay
// or similar); with no URL configured callers fall back to ports.NopNotifier.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/andrescamacho/polisbot/internal/domain/ports"
)

// WebhookNotifier POSTs each message (and optional photo) to one URL
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for the URL; empty URL yields a
// no-op notifier
func NewWebhookNotifier(url string) ports.Notifier {
	if url == "" {
		return ports.NopNotifier{}
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send delivers one message; the photo field is attached when present
func (n *WebhookNotifier) Send(ctx context.Context, message string, photo io.Reader) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("message", message); err != nil {
		return err
	}
	if photo != nil {
		part, err := writer.CreateFormFile("photo", "photo.png")
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, photo); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
