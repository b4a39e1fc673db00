package signature

import (
	"crypto/hmac"
	"strings"
)

// Verify reports whether presented is a valid signature for payload under
// secret. The presented value must carry the "sha256=" prefix. Returns false
// for a missing prefix, a malformed digest, or a mismatch; it never panics.
func (s *Signer) Verify(payload []byte, secret, presented string) bool {
	return Verify(payload, secret, presented)
}

// Verify reports whether presented is a valid "sha256=<hex>" signature for
// payload under secret.
func Verify(payload []byte, secret, presented string) bool {
	digest, ok := strings.CutPrefix(presented, Prefix)
	if !ok {
		return false
	}

	expected := Sign(payload, secret)

	// hmac.Equal is constant-time only for equal-length inputs, so unequal
	// lengths must short-circuit before the comparison.
	if len(digest) != len(expected) {
		return false
	}

	return hmac.Equal([]byte(digest), []byte(expected))
}
