package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"jorfline/internal/config"
	"jorfline/internal/domain"
)

// Webhook posts each notification as JSON to an external push gateway.
type Webhook struct {
	Hook   config.WebhookConfig
	Client *http.Client
}

func NewWebhook(hook config.WebhookConfig) *Webhook {
	return &Webhook{Hook: hook, Client: &http.Client{Timeout: hook.Timeout()}}
}

func (w *Webhook) Deliver(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(Message{Channel: Channel(n.Recipient), Event: "notification", Data: n})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Jorf-Category", n.Category)
	req.Header.Set("X-Jorf-Delivery", n.ID)
	if strings.TrimSpace(w.Hook.Secret) != "" {
		req.Header.Set("X-Jorf-Secret", w.Hook.Secret)
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: w.Hook.Timeout()}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
