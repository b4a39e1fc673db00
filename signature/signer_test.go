package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/veloxpay/dispatch/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"event":"test"}`)
	secret := "testsecret123"

	got := signature.Sign(payload, secret)

	// Compute the expected HMAC-SHA256 independently.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := signature.NewSigner()
	payloads := [][]byte{
		[]byte(``),
		[]byte(`{}`),
		[]byte(`{"payment_id":"pay_01h2x","amount":9900}`),
		{0x00, 0xff, 0x10, 0x80},
	}
	secrets := []string{"s", "roundtripsecret", signature.GenerateSecret()}

	for _, payload := range payloads {
		for _, secret := range secrets {
			sig := signer.Header(payload, secret)
			if !signer.Verify(payload, secret, sig) {
				t.Errorf("Verify() = false for valid signature %q over %q", sig, payload)
			}
		}
	}
}

func TestVerifyMissingPrefix(t *testing.T) {
	payload := []byte(`{"data":"value"}`)
	secret := "prefixsecret"

	// A raw digest without "sha256=" must be rejected.
	if signature.Verify(payload, secret, signature.Sign(payload, secret)) {
		t.Error("Verify() accepted a signature without the sha256= prefix")
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	payload := []byte(`{"original":true}`)
	secret := "tampersecret"

	sig := signature.Header(payload, secret)

	// Flip a single byte.
	tampered := []byte(`{"original":truf}`)
	if signature.Verify(tampered, secret, sig) {
		t.Error("Verify() accepted a tampered payload")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	payload := []byte(`{"data":"value"}`)

	sig := signature.Header(payload, "correct")

	if signature.Verify(payload, "wrong", sig) {
		t.Error("Verify() accepted a signature produced with a different secret")
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	payload := []byte(`{"data":"value"}`)
	secret := "malformedsecret"

	for _, presented := range []string{
		"",
		"sha256=",
		"sha256=abc",
		"sha256=not-hex-but-correct-length-0000000000000000000000000000000000000",
		"sha1=" + signature.Sign(payload, secret),
		"SHA256=" + signature.Sign(payload, secret),
	} {
		if signature.Verify(payload, secret, presented) {
			t.Errorf("Verify() accepted malformed signature %q", presented)
		}
	}
}

func TestHeaderFormat(t *testing.T) {
	sig := signature.Header([]byte("test"), "secret")

	if len(sig) < 7 || sig[:7] != "sha256=" {
		t.Errorf("header should start with 'sha256=', got %q", sig)
	}

	// sha256= prefix (7) + 64 hex chars (SHA256 = 32 bytes = 64 hex)
	if len(sig) != 71 {
		t.Errorf("expected header length 71, got %d", len(sig))
	}
}
