package proof

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
)

func TestEnroll(t *testing.T) {
	var got EnrollRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/enroll" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("authorization") != "Bearer key_123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"proof_id":"prf_1","enrollment_status":"enrolled","key_id":"k1"}`))
	}))
	defer ts.Close()

	c := New(ts.URL+"/", "key_123", time.Second)
	res, err := c.Enroll(context.Background(), EnrollRequest{
		OrderID:     "1001",
		NfcUID:      "abcd",
		NfcToken:    "token_x",
		PhotoURLs:   []string{"https://cdn/p1.jpg"},
		ShippingGPS: GPS{Lat: 40.7, Lng: -74},
	})
	if err != nil {
		t.Fatalf("Enroll error: %v", err)
	}
	if res.ProofID != "prf_1" || res.KeyID != "k1" || res.EnrollmentStatus != "enrolled" {
		t.Fatalf("unexpected response: %+v", res)
	}
	if got.NfcToken != "token_x" || got.OrderID != "1001" || len(got.PhotoURLs) != 1 {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestEnrollNon2xxIsUpstreamFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"duplicate"}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, "", time.Second).Enroll(context.Background(), EnrollRequest{})
	if apperr.KindOf(err) != apperr.UpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
}

func TestVerifyErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperr.Kind
	}{
		{"phone required", http.StatusForbidden, apperr.PhoneVerificationRequired},
		{"not enrolled", http.StatusNotFound, apperr.TagNotEnrolled},
		{"server error", http.StatusInternalServerError, apperr.VerificationFailed},
		{"bad request", http.StatusBadRequest, apperr.VerificationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			_, err := New(ts.URL, "", time.Second).Verify(context.Background(), VerifyRequest{NfcUID: "u"})
			if got := apperr.KindOf(err); got != tt.want {
				t.Fatalf("kind=%s want %s (err=%v)", got, tt.want, err)
			}
		})
	}
}

func TestVerifyKeepsRawBody(t *testing.T) {
	body := `{"proof_id":"prf_1","verification_status":"verified","gps_verdict":"within_range","distance_meters":12.5,"signature":"sig","verify_url":"https://ink/v/prf_1","extra":true}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer ts.Close()

	res, err := New(ts.URL, "", time.Second).Verify(context.Background(), VerifyRequest{NfcUID: "u"})
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if res.VerificationStatus != "verified" || res.DistanceMeters != 12.5 {
		t.Fatalf("unexpected response: %+v", res)
	}
	if string(res.Raw) != body {
		t.Fatalf("raw body not preserved: %s", res.Raw)
	}
}

func TestRetrieveProof(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/retrieve/prf_1":
			_, _ = w.Write([]byte(`{"proof_id":"prf_1","order_id":"5551234","delivery":{"timestamp":"2026-10-18T10:00:00Z","delivery_gps":{"lat":1,"lng":2},"gps_verdict":"within_range","phone_verified":true},"verify_url":"https://ink/v/prf_1"}`))
		case "/retrieve/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer ts.Close()

	c := New(ts.URL, "", time.Second)
	rec, err := c.RetrieveProof(context.Background(), "prf_1")
	if err != nil {
		t.Fatalf("RetrieveProof error: %v", err)
	}
	if rec.OrderID != "5551234" || rec.Delivery == nil || !rec.Delivery.PhoneVerified {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := c.RetrieveProof(context.Background(), "missing"); apperr.KindOf(err) != apperr.ProofNotFound {
		t.Fatalf("expected proof_not_found, got %v", err)
	}
	if _, err := c.RetrieveProof(context.Background(), "other"); apperr.KindOf(err) != apperr.RetrieveFailed {
		t.Fatalf("expected retrieve_failed, got %v", err)
	}
}

func TestClientTimeoutIsUpstreamFailure(t *testing.T) {
	done := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-done
	}))
	defer ts.Close()
	defer close(done)

	_, err := New(ts.URL, "", 50*time.Millisecond).Verify(context.Background(), VerifyRequest{})
	if apperr.KindOf(err) != apperr.UpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable on timeout, got %v", err)
	}
}

func TestGPSValidate(t *testing.T) {
	if err := (GPS{Lat: 91, Lng: 0}).Validate(); err == nil {
		t.Fatalf("lat out of range should fail")
	}
	if err := (GPS{}).Validate(); err == nil {
		t.Fatalf("zero coordinates should fail")
	}
	if err := (GPS{Lat: 24.86, Lng: 67.0}).Validate(); err != nil {
		t.Fatalf("valid gps rejected: %v", err)
	}
}
