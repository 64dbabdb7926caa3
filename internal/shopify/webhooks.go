package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Topics the app subscribes each shop to.
var WebhookTopics = []string{"orders/create"}

type webhookCreateReq struct {
	Webhook struct {
		Address string `json:"address"`
		Topic   string `json:"topic"`
		Format  string `json:"format"`
	} `json:"webhook"`
}

type webhookCreateResp struct {
	Webhook struct {
		ID int64 `json:"id"`
	} `json:"webhook"`
}

// CreateWebhook registers an HTTPS webhook for topic and returns its id.
func (c *Client) CreateWebhook(ctx context.Context, topic, address string) (int64, error) {
	var payload webhookCreateReq
	payload.Webhook.Address = address
	payload.Webhook.Topic = topic
	payload.Webhook.Format = "json"

	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restEndpoint("/webhooks.json"), bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return 0, fmt.Errorf("create webhook %s failed: http %d: %s", topic, res.StatusCode, string(raw))
	}

	var out webhookCreateResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("create webhook %s: decode: %w", topic, err)
	}
	return out.Webhook.ID, nil
}

// SubscribeTopics points every topic in WebhookTopics at address.
func (c *Client) SubscribeTopics(ctx context.Context, address string) (created []string, failed []map[string]string) {
	for _, t := range WebhookTopics {
		if _, err := c.CreateWebhook(ctx, t, address); err != nil {
			failed = append(failed, map[string]string{"topic": t, "error": err.Error()})
			continue
		}
		created = append(created, t)
	}
	return created, failed
}
