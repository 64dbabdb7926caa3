package proof

import (
	"encoding/json"
	"fmt"
	"math"
)

// GPS is a WGS84 coordinate pair.
type GPS struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

func (g GPS) Validate() error {
	if math.IsNaN(g.Lat) || math.IsNaN(g.Lng) {
		return fmt.Errorf("gps: NaN coordinate")
	}
	if g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("gps: lat %v out of range", g.Lat)
	}
	if g.Lng < -180 || g.Lng > 180 {
		return fmt.Errorf("gps: lng %v out of range", g.Lng)
	}
	if g.Lat == 0 && g.Lng == 0 {
		return fmt.Errorf("gps: missing coordinates")
	}
	return nil
}

type EnrollRequest struct {
	OrderID     string   `json:"order_id"`
	OrderName   string   `json:"order_name,omitempty"`
	NfcUID      string   `json:"nfc_uid"`
	NfcToken    string   `json:"nfc_token"`
	PhotoURLs   []string `json:"photo_urls"`
	ShippingGPS GPS      `json:"shipping_gps"`
	WarehouseID string   `json:"warehouse_id,omitempty"`
}

type EnrollResponse struct {
	ProofID          string `json:"proof_id"`
	EnrollmentStatus string `json:"enrollment_status"`
	KeyID            string `json:"key_id"`
}

type VerifyRequest struct {
	NfcUID      string          `json:"nfc_uid"`
	NfcToken    string          `json:"nfc_token"`
	DeliveryGPS GPS             `json:"delivery_gps"`
	DeviceInfo  json.RawMessage `json:"device_info,omitempty"`
	PhoneLast4  string          `json:"phone_last4,omitempty"`
}

type VerifyResponse struct {
	ProofID            string  `json:"proof_id"`
	VerificationStatus string  `json:"verification_status"`
	GPSVerdict         string  `json:"gps_verdict"`
	DistanceMeters     float64 `json:"distance_meters"`
	Signature          string  `json:"signature"`
	VerifyURL          string  `json:"verify_url"`

	// Raw is the authority's body, returned verbatim to the scanning device.
	Raw json.RawMessage `json:"-"`
}

type Enrollment struct {
	Timestamp   string   `json:"timestamp"`
	ShippingGPS GPS      `json:"shipping_gps"`
	PhotoURLs   []string `json:"photo_urls"`
}

type Delivery struct {
	Timestamp     string `json:"timestamp"`
	DeliveryGPS   GPS    `json:"delivery_gps"`
	GPSVerdict    string `json:"gps_verdict"`
	PhoneVerified bool   `json:"phone_verified"`
}

// Record is the proof owned by the authority. The app only ever reads it.
type Record struct {
	ProofID    string     `json:"proof_id"`
	OrderID    string     `json:"order_id"`
	Enrollment Enrollment `json:"enrollment"`
	Delivery   *Delivery  `json:"delivery,omitempty"`
	VerifyURL  string     `json:"verify_url"`
	Signature  string     `json:"signature"`
	PublicKey  string     `json:"public_key"`
	KeyID      string     `json:"key_id"`
}
