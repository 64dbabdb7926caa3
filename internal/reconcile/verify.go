package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/identity"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/jobs"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/proof"
)

// VerifyInput is the customer scan.
type VerifyInput struct {
	SerialNumber string          `json:"serial_number"`
	DeliveryGPS  proof.GPS       `json:"delivery_gps"`
	DeviceInfo   json.RawMessage `json:"device_info,omitempty"`
	PhoneLast4   string          `json:"phone_last4,omitempty"`
}

func (in VerifyInput) Validate() error {
	var fields []apperr.FieldError
	if !identity.Valid(in.SerialNumber) {
		fields = append(fields, apperr.FieldError{Field: "serial_number", Message: "must contain hex digits"})
	}
	if err := in.DeliveryGPS.Validate(); err != nil {
		fields = append(fields, apperr.FieldError{Field: "delivery_gps", Message: err.Error()})
	}
	if p := in.PhoneLast4; p != "" {
		ok := len(p) == 4
		for _, r := range p {
			if r < '0' || r > '9' {
				ok = false
			}
		}
		if !ok {
			fields = append(fields, apperr.FieldError{Field: "phone_last4", Message: "must be 4 digits"})
		}
	}
	if len(fields) > 0 {
		e := apperr.New(apperr.MalformedPayload, "invalid verification request")
		e.Fields = fields
		return e
	}
	return nil
}

// Verify forwards a scan to the proof authority and returns its answer as is.
// The metafield mirror is updated by a queued sync_proof job, and the signed
// webhook for the same delivery converges on the same state.
func (o *Orchestrator) Verify(ctx context.Context, in VerifyInput) (*proof.VerifyResponse, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	id := identity.DeriveIdentity(in.SerialNumber)

	resp, err := o.Authority.Verify(ctx, proof.VerifyRequest{
		NfcUID:      id.UID,
		NfcToken:    id.Token,
		DeliveryGPS: in.DeliveryGPS,
		DeviceInfo:  in.DeviceInfo,
		PhoneLast4:  in.PhoneLast4,
	})
	o.Metrics.Authority("verify", err, string(apperr.KindOf(err)))
	if err != nil {
		return nil, err
	}

	l := o.log().With(slog.String("nfc_uid", id.UID), slog.String("proof_id", resp.ProofID))
	l.Info("scan verified", slog.String("status", resp.VerificationStatus), slog.String("gps_verdict", resp.GPSVerdict))

	if resp.ProofID != "" && resp.VerificationStatus != "" && o.Queue != nil {
		err := o.Queue.Enqueue(ctx, jobs.Job{
			Kind:         jobs.SyncProof,
			ProofID:      resp.ProofID,
			Status:       resp.VerificationStatus,
			GPSVerdict:   resp.GPSVerdict,
			PhoneChecked: in.PhoneLast4 != "",
		})
		if err != nil {
			l.Error("enqueue sync_proof failed; relying on webhook", slog.Any("err", err))
		}
	}
	return resp, nil
}
