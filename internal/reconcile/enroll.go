package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/identity"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/lifecycle"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/proof"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

// EnrollInput is the warehouse request, already decoded at the boundary.
type EnrollInput struct {
	OrderRef     string    `json:"order_ref"`
	SerialNumber string    `json:"serial_number"`
	PhotoURLs    []string  `json:"photo_urls"`
	ShippingGPS  proof.GPS `json:"shipping_gps"`
	WarehouseID  string    `json:"warehouse_id,omitempty"`
}

func (in EnrollInput) Validate() error {
	var fields []apperr.FieldError
	if strings.TrimSpace(in.OrderRef) == "" {
		fields = append(fields, apperr.FieldError{Field: "order_ref", Message: "required"})
	}
	if !identity.Valid(in.SerialNumber) {
		fields = append(fields, apperr.FieldError{Field: "serial_number", Message: "must contain hex digits"})
	}
	if len(in.PhotoURLs) == 0 {
		fields = append(fields, apperr.FieldError{Field: "photo_urls", Message: "at least one photo is required"})
	}
	for _, u := range in.PhotoURLs {
		if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
			fields = append(fields, apperr.FieldError{Field: "photo_urls", Message: "must be absolute URLs"})
			break
		}
	}
	if err := in.ShippingGPS.Validate(); err != nil {
		fields = append(fields, apperr.FieldError{Field: "shipping_gps", Message: err.Error()})
	}
	if len(fields) > 0 {
		e := apperr.New(apperr.MalformedPayload, "invalid enrollment request")
		e.Fields = fields
		return e
	}
	return nil
}

type EnrollResult struct {
	OrderGID         string `json:"order_gid"`
	ProofID          string `json:"proof_id"`
	EnrollmentStatus string `json:"enrollment_status"`
	KeyID            string `json:"key_id,omitempty"`
	NfcUID           string `json:"nfc_uid"`
	// AlreadyEnrolled is set when the same tag was enrolled on this order before.
	AlreadyEnrolled bool `json:"already_enrolled,omitempty"`
}

// Enroll registers a sealed package with the proof authority and mirrors the
// result onto the order. Enrolling is not idempotent upstream, so an order
// already carrying a proof_reference is never sent to the authority again.
func (o *Orchestrator) Enroll(ctx context.Context, in EnrollInput) (*EnrollResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	id := identity.DeriveIdentity(in.SerialNumber)

	gid, err := o.Resolver.Resolve(ctx, in.OrderRef)
	if err != nil {
		return nil, err
	}
	st, err := o.Orders.ReadOrder(ctx, gid)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, apperr.Newf(apperr.OrderNotFound, "order %s not found", gid)
	}

	l := o.log().With(slog.String("order_gid", gid), slog.String("nfc_uid", id.UID))

	if ref := st.Fields[shopify.KeyProofReference]; ref != "" {
		if st.Fields[shopify.KeyNfcUID] == id.UID {
			l.Info("enroll replay, returning existing proof", slog.String("proof_id", ref))
			return &EnrollResult{
				OrderGID:         gid,
				ProofID:          ref,
				EnrollmentStatus: string(lifecycle.Parse(st.Fields[shopify.KeyStatus])),
				NfcUID:           id.UID,
				AlreadyEnrolled:  true,
			}, nil
		}
		return nil, apperr.Newf(apperr.AlreadyEnrolled, "order %s already enrolled with another tag", gid)
	}
	if cur := lifecycle.Parse(st.Fields[shopify.KeyStatus]); !lifecycle.Allows(cur, lifecycle.Enrolled) {
		return nil, apperr.Newf(apperr.AlreadyEnrolled, "order %s is %s", gid, cur)
	}

	resp, err := o.Authority.Enroll(ctx, proof.EnrollRequest{
		OrderID:     gid,
		OrderName:   st.Name,
		NfcUID:      id.UID,
		NfcToken:    id.Token,
		PhotoURLs:   in.PhotoURLs,
		ShippingGPS: in.ShippingGPS,
		WarehouseID: in.WarehouseID,
	})
	o.Metrics.Authority("enroll", err, string(apperr.KindOf(err)))
	if err != nil {
		return nil, err
	}
	l = l.With(slog.String("proof_id", resp.ProofID))
	l.Info("enrolled with proof authority")

	fields := map[string]string{
		shopify.KeyProofReference: resp.ProofID,
		shopify.KeyNfcUID:         id.UID,
		shopify.KeyStatus:         string(lifecycle.Enrolled),
	}
	if _, err := o.apply(ctx, gid, fields); err != nil {
		o.retryLater(ctx, gid, fields, err)
	}

	return &EnrollResult{
		OrderGID:         gid,
		ProofID:          resp.ProofID,
		EnrollmentStatus: resp.EnrollmentStatus,
		KeyID:            resp.KeyID,
		NfcUID:           id.UID,
	}, nil
}
