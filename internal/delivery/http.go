package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kerigma/internal/config"
	"kerigma/internal/models"
)

// HTTPDeliverer posts action payloads to the backend. The action id is sent
// as Idempotency-Key so a retried delivery can be recognized server side.
type HTTPDeliverer struct {
	baseURL string
	apiKey  string
	routes  map[string]string
	client  *http.Client
}

func NewHTTPDeliverer(cfg config.DeliveryConfig) *HTTPDeliverer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = models.DefaultDeliveryTimeout
	}
	routes := make(map[string]string, len(cfg.Routes))
	for k, v := range cfg.Routes {
		routes[k] = v
	}
	return &HTTPDeliverer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		routes:  routes,
		client:  &http.Client{Timeout: timeout},
	}
}

// Route returns the path for an action type; unrouted types post to /<type>.
func (d *HTTPDeliverer) Route(actionType string) string {
	if p, ok := d.routes[actionType]; ok {
		return "/" + strings.TrimLeft(p, "/")
	}
	return "/" + actionType
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, action models.PendingAction) error {
	body := action.Payload
	if len(body) == 0 {
		body = []byte("{}")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+d.Route(action.Type), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", action.ID)
	req.Header.Set("X-Action-Type", action.Type)
	req.Header.Set("X-Action-Created-At", action.CreatedAt.UTC().Format(time.RFC3339Nano))
	if d.apiKey != "" {
		req.Header.Set("apikey", d.apiKey)
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", action.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("deliver %s: status %d: %s", action.ID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
