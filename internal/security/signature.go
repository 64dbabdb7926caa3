// Package security signs and verifies webhook payloads and encrypts stored
// shop tokens.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Header names for the two signed webhook sources.
const (
	InkSignatureHeader     = "X-INK-Signature"
	ShopifySignatureHeader = "X-Shopify-Hmac-Sha256"
)

// Encoding selects how the HMAC digest is written into the header.
type Encoding int

const (
	Hex Encoding = iota
	Base64
)

// Sign returns the HMAC-SHA256 of body under secret in the given encoding.
func Sign(body []byte, secret string, enc Encoding) string {
	sum := mac(body, secret)
	if enc == Base64 {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}

// Verify checks an HMAC-SHA256 signature over the exact raw body.
// It fails closed and never panics: empty header, empty secret, undecodable
// signature or a length mismatch all return false.
func Verify(rawBody []byte, header, secret string, enc Encoding) bool {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return false
	}

	var got []byte
	var err error
	switch enc {
	case Base64:
		got, err = base64.StdEncoding.DecodeString(header)
	default:
		if len(header) > 7 && strings.EqualFold(header[:7], "sha256=") {
			header = header[7:]
		}
		got, err = hex.DecodeString(header)
	}
	if err != nil {
		return false
	}

	expected := mac(rawBody, secret)
	if len(got) != len(expected) {
		return false
	}
	return hmac.Equal(got, expected)
}

// VerifyHex is the proof authority scheme (X-INK-Signature).
func VerifyHex(rawBody []byte, header, secret string) bool {
	return Verify(rawBody, header, secret, Hex)
}

// VerifyBase64 is the Shopify webhook scheme (X-Shopify-Hmac-Sha256).
func VerifyBase64(rawBody []byte, header, secret string) bool {
	return Verify(rawBody, header, secret, Base64)
}

func mac(body []byte, secret string) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	_, _ = m.Write(body)
	return m.Sum(nil)
}
