package handlers

import (
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
)

func corsHeaders() map[string]string {
	return map[string]string{
		"content-type":                 "application/json",
		"access-control-allow-origin":  "*",
		"access-control-allow-methods": "POST, OPTIONS",
		"access-control-allow-headers": "content-type, x-warehouse-key",
	}
}

func jsonResp(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return rawResp(status, b)
}

func rawResp(status int, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    corsHeaders(),
		Body:       string(body),
	}, nil
}

func errResp(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(status, map[string]any{
		"error": msg,
	})
}

// kindResp maps an error to its status and a generic message. Detail stays in
// the logs.
func kindResp(err error) (events.APIGatewayV2HTTPResponse, error) {
	kind := apperr.KindOf(err)
	body := map[string]any{
		"error": apperr.PublicMessage(kind),
		"code":  string(kind),
	}
	if kind == apperr.MalformedPayload {
		if fe := apperr.FieldsOf(err); len(fe) > 0 {
			body["fields"] = fe
		}
	}
	return jsonResp(apperr.HTTPStatus(kind), body)
}
