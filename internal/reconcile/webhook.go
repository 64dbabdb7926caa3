package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/lifecycle"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/proof"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/security"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

// OrderRef accepts a JSON string or number.
type OrderRef string

func (r *OrderRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = OrderRef(strings.TrimSpace(s))
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return err
	}
	*r = OrderRef(n.String())
	return nil
}

// WebhookEvent is the proof authority's signed delivery notification.
type WebhookEvent struct {
	OrderID     OrderRef   `json:"order_id"`
	Status      string     `json:"status"`
	DeliveryGPS *proof.GPS `json:"delivery_gps,omitempty"`
	GPSVerdict  string     `json:"gps_verdict,omitempty"`
	ProofRef    string     `json:"proof_ref,omitempty"`
	Timestamp   string     `json:"timestamp,omitempty"`
	VerifyURL   string     `json:"verify_url,omitempty"`
}

// DecodeWebhook parses an already-authenticated body.
func DecodeWebhook(raw []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, apperr.Wrap(apperr.MalformedPayload, err, "webhook body")
	}
	if ev.OrderID == "" {
		return nil, apperr.New(apperr.MalformedPayload, "webhook without order_id")
	}
	if effectiveStatus(ev.Status, ev.GPSVerdict) == lifecycle.Unknown {
		return nil, apperr.Newf(apperr.MalformedPayload, "unknown status %q", ev.Status)
	}
	return &ev, nil
}

var flaggedVerdicts = map[string]bool{
	"out_of_range": true,
	"mismatch":     true,
	"fraudulent":   true,
}

var flaggedStatuses = map[string]bool{
	"flagged":  true,
	"failed":   true,
	"rejected": true,
}

// effectiveStatus maps an authority status and GPS verdict onto the lattice.
// A failing verdict flags the order whatever the status says.
func effectiveStatus(status, verdict string) lifecycle.Status {
	s := strings.ToLower(strings.TrimSpace(status))
	v := strings.ToLower(strings.TrimSpace(verdict))
	if flaggedStatuses[s] || flaggedVerdicts[v] {
		return lifecycle.Flagged
	}
	return lifecycle.Parse(s)
}

// deliveryFields builds the metafield set for a delivery outcome.
func deliveryFields(st lifecycle.Status, proofID string, gps *proof.GPS, verdict, ts, verifyURL string) map[string]string {
	f := map[string]string{
		shopify.KeyStatus:            string(st),
		shopify.KeyProofReference:    proofID,
		shopify.KeyGPSVerdict:        verdict,
		shopify.KeyDeliveryTimestamp: ts,
		shopify.KeyVerifyURL:         verifyURL,
	}
	if gps != nil {
		if b, err := json.Marshal(gps); err == nil {
			f[shopify.KeyDeliveryGPS] = string(b)
		}
	}
	return f
}

type WebhookResult struct {
	OrderGID  string           `json:"order_gid"`
	Status    lifecycle.Status `json:"status"`
	Advanced  bool             `json:"advanced"`
	Deferred  bool             `json:"deferred,omitempty"`
	Duplicate bool             `json:"duplicate,omitempty"`
	Skipped   bool             `json:"skipped,omitempty"`
}

// HandleWebhook authenticates, decodes and applies a proof authority event.
// Replays are safe: a second identical delivery writes nothing. Metafield
// failures are deferred to the queue and the event is still acknowledged.
func (o *Orchestrator) HandleWebhook(ctx context.Context, raw []byte, signature string) (*WebhookResult, error) {
	if !security.VerifyHex(raw, signature, o.Cfg.InkWebhookSecret) {
		o.Metrics.Event("ink_webhook", "invalid_signature")
		return nil, apperr.New(apperr.InvalidSignature, "ink webhook signature mismatch")
	}
	ev, err := DecodeWebhook(raw)
	if err != nil {
		o.Metrics.Event("ink_webhook", "malformed")
		return nil, err
	}

	gid, err := o.Resolver.Resolve(ctx, string(ev.OrderID))
	if err != nil {
		o.Metrics.Event("ink_webhook", string(apperr.KindOf(err)))
		return nil, err
	}

	status := effectiveStatus(ev.Status, ev.GPSVerdict)
	fields := deliveryFields(status, ev.ProofRef, ev.DeliveryGPS, ev.GPSVerdict, ev.Timestamp, ev.VerifyURL)

	res := &WebhookResult{OrderGID: gid, Status: status}
	out, err := o.apply(ctx, gid, fields)
	if err != nil {
		if apperr.Is(err, apperr.OrderNotFound) {
			o.Metrics.Event("ink_webhook", string(apperr.OrderNotFound))
			return nil, err
		}
		o.retryLater(ctx, gid, fields, err)
		res.Deferred = true
		o.Metrics.Event("ink_webhook", "deferred")
		return res, nil
	}

	res.Status = out.Status
	res.Advanced = out.Advanced
	res.Skipped = out.Stale || len(out.Written) == 0
	o.log().Info("ink webhook applied",
		slog.String("order_gid", gid),
		slog.String("status", string(out.Status)),
		slog.Bool("advanced", out.Advanced),
		slog.Int("written", len(out.Written)))
	o.Metrics.Event("ink_webhook", "ok")
	return res, nil
}
