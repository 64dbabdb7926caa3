package shopify

import (
	"context"
	"sort"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
)

// Metafield keys in the ink namespace.
const (
	KeyStatus            = "verification_status"
	KeyNfcUID            = "nfc_uid"
	KeyProofReference    = "proof_reference"
	KeyDeliveryGPS       = "delivery_gps"
	KeyGPSVerdict        = "gps_verdict"
	KeyDeliveryTimestamp = "delivery_timestamp"
	KeyVerifyURL         = "verify_url"
	KeyFollowupSent      = "followup_sent"
)

const metafieldsSetMutation = `
mutation MetafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { key namespace }
    userErrors { field message code }
  }
}`

type metafieldsSetInput struct {
	OwnerID   string `json:"ownerId"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

type metafieldsSetData struct {
	MetafieldsSet struct {
		UserErrors []struct {
			Field   []string `json:"field"`
			Message string   `json:"message"`
			Code    string   `json:"code"`
		} `json:"userErrors"`
	} `json:"metafieldsSet"`
}

func metafieldType(key string) string {
	if key == KeyDeliveryGPS {
		return "json"
	}
	return "single_line_text_field"
}

// Synchronizer mirrors verification fields onto order metafields.
type Synchronizer struct {
	Client *Client
}

func NewSynchronizer(c *Client) *Synchronizer {
	return &Synchronizer{Client: c}
}

func (s *Synchronizer) ReadOrder(ctx context.Context, gid string) (*OrderState, error) {
	return s.Client.ReadOrder(ctx, gid)
}

// Upsert writes every field in a single metafieldsSet call. Empty values are
// skipped since Shopify rejects blank metafields. User errors come back as a
// PartialSyncFailure listing each rejected key.
func (s *Synchronizer) Upsert(ctx context.Context, gid string, fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	inputs := make([]metafieldsSetInput, 0, len(keys))
	for _, k := range keys {
		inputs = append(inputs, metafieldsSetInput{
			OwnerID:   gid,
			Namespace: MetafieldNamespace,
			Key:       k,
			Type:      metafieldType(k),
			Value:     fields[k],
		})
	}

	data, err := query[metafieldsSetData](ctx, s.Client, "metafieldsSet", metafieldsSetMutation, map[string]any{
		"metafields": inputs,
	})
	if err != nil {
		return err
	}

	ue := data.MetafieldsSet.UserErrors
	if len(ue) == 0 {
		return nil
	}
	e := apperr.Newf(apperr.PartialSyncFailure, "metafieldsSet rejected %d field(s) on %s", len(ue), gid)
	for _, u := range ue {
		field := ""
		if len(u.Field) > 0 {
			field = u.Field[len(u.Field)-1]
			// field paths look like ["metafields", "2", "value"]
			if idx := indexOf(u.Field); idx >= 0 && idx < len(inputs) {
				field = inputs[idx].Key
			}
		}
		e.Fields = append(e.Fields, apperr.FieldError{Field: field, Message: u.Message, Code: u.Code})
	}
	return e
}

func indexOf(path []string) int {
	if len(path) < 2 || path[0] != "metafields" {
		return -1
	}
	n := 0
	for _, r := range path[1] {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
