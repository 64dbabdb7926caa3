package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/lifecycle"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/security"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

// ShopifyOrder is the part of the orders/create payload we read.
type ShopifyOrder struct {
	ID           int64  `json:"id"`
	AdminGraphID string `json:"admin_graphql_api_id"`
	Name         string `json:"name"`
	LineItems    []struct {
		SKU   string `json:"sku"`
		Title string `json:"title"`
	} `json:"line_items"`
}

func (o ShopifyOrder) GID() string {
	if o.AdminGraphID != "" {
		return o.AdminGraphID
	}
	if o.ID > 0 {
		return "gid://shopify/Order/" + strconv.FormatInt(o.ID, 10)
	}
	return ""
}

func (o ShopifyOrder) HasSKU(sku string) bool {
	for _, li := range o.LineItems {
		if strings.EqualFold(strings.TrimSpace(li.SKU), sku) {
			return true
		}
	}
	return false
}

// MarkPending handles Shopify's orders/create webhook: orders that bought the
// verified-delivery add-on start at pending.
func (o *Orchestrator) MarkPending(ctx context.Context, raw []byte, hmacHeader, webhookID string) (*WebhookResult, error) {
	if !security.VerifyBase64(raw, hmacHeader, o.Cfg.ShopifyWebhookSecret) {
		o.Metrics.Event("shopify_orders_create", "invalid_signature")
		return nil, apperr.New(apperr.InvalidSignature, "shopify webhook hmac mismatch")
	}

	var order ShopifyOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		o.Metrics.Event("shopify_orders_create", "malformed")
		return nil, apperr.Wrap(apperr.MalformedPayload, err, "orders/create body")
	}
	gid := order.GID()
	if gid == "" {
		o.Metrics.Event("shopify_orders_create", "malformed")
		return nil, apperr.New(apperr.MalformedPayload, "orders/create without id")
	}

	l := o.log().With(slog.String("order_gid", gid), slog.String("webhook_id", webhookID))

	if o.Ledger != nil {
		dup, err := o.Ledger.ClaimWebhook(ctx, webhookID, "orders/create")
		if err != nil {
			l.Warn("webhook dedupe unavailable", slog.Any("err", err))
		} else if dup {
			l.Info("duplicate shopify webhook")
			o.Metrics.Event("shopify_orders_create", "duplicate")
			return &WebhookResult{OrderGID: gid, Duplicate: true}, nil
		}
	}

	if !order.HasSKU(o.Cfg.AddonSKU) {
		o.Metrics.Event("shopify_orders_create", "no_addon")
		return &WebhookResult{OrderGID: gid, Skipped: true}, nil
	}

	fields := map[string]string{shopify.KeyStatus: string(lifecycle.Pending)}
	res := &WebhookResult{OrderGID: gid, Status: lifecycle.Pending}
	out, err := o.apply(ctx, gid, fields)
	if err != nil {
		o.retryLater(ctx, gid, fields, err)
		res.Deferred = true
		o.Metrics.Event("shopify_orders_create", "deferred")
		return res, nil
	}
	res.Status = out.Status
	res.Advanced = out.Advanced
	res.Skipped = out.Stale || len(out.Written) == 0
	l.Info("add-on order marked", slog.String("status", string(out.Status)))
	o.Metrics.Event("shopify_orders_create", "ok")
	return res, nil
}
