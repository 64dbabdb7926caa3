package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
)

type GraphQLError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

type GraphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// Client talks to one shop's Admin API.
type Client struct {
	ShopDomain  string
	APIVersion  string
	AccessToken string
	// Endpoint overrides the GraphQL URL; used against local fakes.
	Endpoint string
	HTTP     *http.Client
}

func NewClient(shopDomain, apiVersion, accessToken string, timeout time.Duration) *Client {
	if apiVersion == "" {
		apiVersion = "2026-01"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		ShopDomain:  strings.ToLower(strings.TrimSpace(shopDomain)),
		APIVersion:  apiVersion,
		AccessToken: accessToken,
		HTTP:        &http.Client{Timeout: timeout},
	}
}

func (c *Client) graphQLEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.ShopDomain, c.APIVersion)
}

func (c *Client) restEndpoint(path string) string {
	if c.Endpoint != "" {
		return strings.TrimSuffix(c.Endpoint, "/graphql.json") + path
	}
	return fmt.Sprintf("https://%s/admin/api/%s%s", c.ShopDomain, c.APIVersion, path)
}

func PostGraphQL[T any](ctx context.Context, c *Client, query string, variables any) (*GraphQLResponse[T], int, error) {
	body := map[string]any{
		"query":     query,
		"variables": variables,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphQLEndpoint(), bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, err
	}

	var out GraphQLResponse[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, res.StatusCode, err
	}

	return &out, res.StatusCode, nil
}

// query runs PostGraphQL and folds transport, status and top-level GraphQL
// errors into one UpstreamUnavailable error.
func query[T any](ctx context.Context, c *Client, op, q string, vars any) (*T, error) {
	resp, status, err := PostGraphQL[T](ctx, c, q, vars)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "shopify "+op)
	}
	if status < 200 || status >= 300 {
		return nil, apperr.Newf(apperr.UpstreamUnavailable, "shopify %s: http %d", op, status)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e.Extensions.Code != "" {
				msgs = append(msgs, e.Message+" ("+e.Extensions.Code+")")
			} else {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, apperr.Newf(apperr.UpstreamUnavailable, "shopify %s: %s", op, strings.Join(msgs, "; "))
	}
	return &resp.Data, nil
}
