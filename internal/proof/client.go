// Package proof is the client for the external proof-of-delivery authority.
package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
)

const maxResponseBytes = 1 << 20

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Enroll registers a package. It is not idempotent upstream: every call
// creates a new proof record.
func (c *Client) Enroll(ctx context.Context, in EnrollRequest) (*EnrollResponse, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "/enroll", in)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "enroll")
	}
	if status < 200 || status >= 300 {
		return nil, apperr.Newf(apperr.UpstreamUnavailable, "enroll: http %d: %s", status, snippet(raw))
	}
	var out EnrollResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "enroll: decode response")
	}
	if out.ProofID == "" {
		return nil, apperr.New(apperr.UpstreamUnavailable, "enroll: response without proof_id")
	}
	return &out, nil
}

func (c *Client) Verify(ctx context.Context, in VerifyRequest) (*VerifyResponse, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "/verify", in)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "verify")
	}
	switch {
	case status == http.StatusForbidden:
		return nil, apperr.Newf(apperr.PhoneVerificationRequired, "verify: %s", snippet(raw))
	case status == http.StatusNotFound:
		return nil, apperr.Newf(apperr.TagNotEnrolled, "verify: %s", snippet(raw))
	case status < 200 || status >= 300:
		return nil, apperr.Newf(apperr.VerificationFailed, "verify: http %d: %s", status, snippet(raw))
	}
	var out VerifyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(apperr.VerificationFailed, err, "verify: decode response")
	}
	out.Raw = json.RawMessage(raw)
	return &out, nil
}

func (c *Client) RetrieveProof(ctx context.Context, proofID string) (*Record, error) {
	proofID = strings.TrimSpace(proofID)
	if proofID == "" {
		return nil, apperr.New(apperr.ProofNotFound, "retrieve: empty proof id")
	}
	status, raw, err := c.do(ctx, http.MethodGet, "/retrieve/"+url.PathEscape(proofID), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "retrieve")
	}
	switch {
	case status == http.StatusNotFound:
		return nil, apperr.Newf(apperr.ProofNotFound, "retrieve %s", proofID)
	case status < 200 || status >= 300:
		return nil, apperr.Newf(apperr.RetrieveFailed, "retrieve %s: http %d: %s", proofID, status, snippet(raw))
	}
	var out Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(apperr.RetrieveFailed, err, "retrieve: decode response")
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("authorization", "Bearer "+c.APIKey)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return res.StatusCode, raw, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
