// Package identity derives stable package identifiers from raw NFC tag serials.
//
// The derivation is a pure function: the same serial always yields the same
// UID and token, so packages can be recognised without a lookup table.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	uidLength   = 16
	tokenPrefix = "token_"
)

// Identity is the derived view of one physical tag.
type Identity struct {
	SerialNumber string `json:"serial_number"`
	UID          string `json:"nfc_uid"`
	Token        string `json:"nfc_token"`
}

// Normalize keeps only hex characters and lower-cases them, so
// "EF:8B:C4" and "ef8bc4" are the same serial.
func Normalize(serial string) string {
	var b strings.Builder
	b.Grow(len(serial))
	for i := 0; i < len(serial); i++ {
		c := serial[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
			b.WriteByte(c)
		case c >= 'A' && c <= 'F':
			b.WriteByte(c + ('a' - 'A'))
		}
	}
	return b.String()
}

// Valid reports whether the serial carries any hex digits at all.
// Derivation never fails; callers use this to reject empty serials up front.
func Valid(serial string) bool {
	return Normalize(serial) != ""
}

// DeriveUID returns the first 16 hex chars of SHA-256(normalized serial).
func DeriveUID(serial string) string {
	sum := sha256.Sum256([]byte(Normalize(serial)))
	return hex.EncodeToString(sum[:])[:uidLength]
}

// DeriveToken returns "token_" + hex(SHA-256(uid)).
func DeriveToken(uid string) string {
	sum := sha256.Sum256([]byte(uid))
	return tokenPrefix + hex.EncodeToString(sum[:])
}

// DeriveIdentity keeps serial as given and derives the uid and token from
// its normalized form, so any spelling of the same tag yields the same pair.
func DeriveIdentity(serial string) Identity {
	uid := DeriveUID(serial)
	return Identity{
		SerialNumber: serial,
		UID:          uid,
		Token:        DeriveToken(uid),
	}
}
