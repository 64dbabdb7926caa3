package handlers

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

const ServiceName = "ink-verified-delivery"

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
}

// Health answers liveness checks. It touches no dependencies, so it also runs
// as its own Lambda without configuration.
func Health(_ context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RequestContext.HTTP.Method {
	case "", http.MethodGet, http.MethodHead:
		return jsonResp(http.StatusOK, HealthResponse{OK: true, Service: ServiceName})
	default:
		return errResp(http.StatusMethodNotAllowed, "method not allowed")
	}
}
