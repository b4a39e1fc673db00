// Package signature provides HMAC-SHA256 webhook payload signing and verification.
//
// Signatures are computed over the exact raw request body bytes and carried
// in the form "sha256=<lowercase hex>". Receivers recompute the HMAC over
// the bytes they received and compare in constant time.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Prefix is the scheme prefix carried by every signature header value.
const Prefix = "sha256="

// Signer computes HMAC-SHA256 signatures for webhook payloads.
type Signer struct{}

// NewSigner returns a new Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
// Deterministic and pure: no I/O, no clock.
func (s *Signer) Sign(payload []byte, secret string) string {
	return Sign(payload, secret)
}

// Header returns the full signature header value for payload under secret,
// in the form "sha256=<hex>".
func (s *Signer) Header(payload []byte, secret string) string {
	return Header(payload, secret)
}

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header returns the full signature header value, "sha256=<hex>".
func Header(payload []byte, secret string) string {
	return Prefix + Sign(payload, secret)
}
