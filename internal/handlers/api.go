package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/logger"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/proof"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/reconcile"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/security"
)

const (
	warehouseKeyHeader = "X-Warehouse-Key"
	shopifyWebhookID   = "X-Shopify-Webhook-Id"
	maxBodyBytes       = 1 << 20
)

// Reconciler is the orchestrator surface the HTTP layer drives.
type Reconciler interface {
	Enroll(ctx context.Context, in reconcile.EnrollInput) (*reconcile.EnrollResult, error)
	Verify(ctx context.Context, in reconcile.VerifyInput) (*proof.VerifyResponse, error)
	HandleWebhook(ctx context.Context, raw []byte, signature string) (*reconcile.WebhookResult, error)
	MarkPending(ctx context.Context, raw []byte, hmacHeader, webhookID string) (*reconcile.WebhookResult, error)
}

type API struct {
	Svc          Reconciler
	WarehouseKey string
	Log          *slog.Logger
}

func (a *API) log() *slog.Logger {
	if a.Log == nil {
		return logger.Discard()
	}
	return a.Log
}

// Handle routes an API Gateway HTTP API request by path and method.
func (a *API) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(req.RequestContext.HTTP.Method)
	if method == http.MethodOptions {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNoContent, Headers: corsHeaders()}, nil
	}

	reqID := req.RequestContext.RequestID
	if reqID == "" {
		reqID = uuid.NewString()
	}
	l := a.log().With(slog.String("request_id", reqID), slog.String("path", req.RawPath))

	route := func(h func(context.Context, *slog.Logger, events.APIGatewayV2HTTPRequest, []byte) (events.APIGatewayV2HTTPResponse, error)) (events.APIGatewayV2HTTPResponse, error) {
		if method != http.MethodPost {
			return errResp(http.StatusMethodNotAllowed, "method not allowed")
		}
		body, err := requestBody(req)
		if err != nil {
			l.Warn("unreadable body", slog.Any("err", err))
			return errResp(http.StatusBadRequest, "malformed request")
		}
		return h(ctx, l, req, body)
	}

	switch req.RawPath {
	case "/health":
		return Health(ctx, req)
	case "/ink/enroll":
		return route(a.enroll)
	case "/ink/verify":
		return route(a.verify)
	case "/webhooks/ink":
		return route(a.inkWebhook)
	case "/webhooks/shopify/orders-create":
		return route(a.shopifyOrderCreated)
	default:
		return errResp(http.StatusNotFound, "not found")
	}
}

func requestBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

// header looks up a header case-insensitively; API Gateway lower-cases names.
func header(req events.APIGatewayV2HTTPRequest, name string) string {
	if v, ok := req.Headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func decode(body []byte, v any) error {
	if len(body) == 0 {
		return apperr.New(apperr.MalformedPayload, "empty body")
	}
	if len(body) > maxBodyBytes {
		return apperr.New(apperr.MalformedPayload, "body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.MalformedPayload, err, "decode body")
	}
	return nil
}

func logFailure(l *slog.Logger, op string, err error) {
	kind := apperr.KindOf(err)
	if apperr.HTTPStatus(kind) >= 500 {
		l.Error(op+" failed", slog.String("kind", string(kind)), slog.Any("err", err))
		return
	}
	l.Warn(op+" rejected", slog.String("kind", string(kind)), slog.Any("err", err))
}

func (a *API) enroll(ctx context.Context, l *slog.Logger, req events.APIGatewayV2HTTPRequest, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	key := header(req, warehouseKeyHeader)
	if a.WarehouseKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.WarehouseKey)) != 1 {
		l.Warn("enroll: bad warehouse key")
		return kindResp(apperr.New(apperr.Unauthorized, "warehouse key"))
	}

	var in reconcile.EnrollInput
	if err := decode(body, &in); err != nil {
		logFailure(l, "enroll", err)
		return kindResp(err)
	}
	res, err := a.Svc.Enroll(ctx, in)
	if err != nil {
		logFailure(l, "enroll", err)
		return kindResp(err)
	}
	status := http.StatusCreated
	if res.AlreadyEnrolled {
		status = http.StatusOK
	}
	return jsonResp(status, res)
}

// verify is the customer-facing scan. It returns the proof authority's body
// verbatim; failures collapse to 403, 404, 400 or 500.
func (a *API) verify(ctx context.Context, l *slog.Logger, _ events.APIGatewayV2HTTPRequest, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	var in reconcile.VerifyInput
	if err := decode(body, &in); err != nil {
		logFailure(l, "verify", err)
		return kindResp(err)
	}
	resp, err := a.Svc.Verify(ctx, in)
	if err != nil {
		logFailure(l, "verify", err)
		kind := apperr.KindOf(err)
		if apperr.HTTPStatus(kind) >= 500 {
			return jsonResp(http.StatusInternalServerError, map[string]any{
				"error": apperr.PublicMessage(apperr.VerificationFailed),
				"code":  string(apperr.VerificationFailed),
			})
		}
		return kindResp(err)
	}
	if len(resp.Raw) > 0 {
		return rawResp(http.StatusOK, resp.Raw)
	}
	return jsonResp(http.StatusOK, resp)
}

func (a *API) inkWebhook(ctx context.Context, l *slog.Logger, req events.APIGatewayV2HTTPRequest, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	res, err := a.Svc.HandleWebhook(ctx, body, header(req, security.InkSignatureHeader))
	if err != nil {
		logFailure(l, "ink webhook", err)
		return kindResp(err)
	}
	return jsonResp(http.StatusOK, map[string]any{"ok": true, "result": res})
}

func (a *API) shopifyOrderCreated(ctx context.Context, l *slog.Logger, req events.APIGatewayV2HTTPRequest, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	res, err := a.Svc.MarkPending(ctx, body, header(req, security.ShopifySignatureHeader), header(req, shopifyWebhookID))
	if err != nil {
		logFailure(l, "orders/create webhook", err)
		return kindResp(err)
	}
	return jsonResp(http.StatusOK, map[string]any{"ok": true, "result": res})
}
