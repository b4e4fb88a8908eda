package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"payflow/internal/types"
)

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHMACVerifier_ValidSignature(t *testing.T) {
	payload := []byte(`{"event":"payment.succeeded","object":{"id":"yk-1"}}`)
	v := NewHMACVerifier("webhook-secret")

	if err := v.Verify(payload, signPayload("webhook-secret", payload)); err != nil {
		t.Fatalf("expected valid signature to pass, got: %v", err)
	}
}

func TestHMACVerifier_InvalidSignature(t *testing.T) {
	payload := []byte(`{"event":"payment.succeeded"}`)
	v := NewHMACVerifier("webhook-secret")

	err := v.Verify(payload, signPayload("wrong-secret", payload))
	if err == nil {
		t.Fatal("expected invalid signature to fail")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeAuthSignatureInvalid {
		t.Errorf("expected code %s, got %s", types.ErrCodeAuthSignatureInvalid, appErr.Code)
	}
}

func TestHMACVerifier_TamperedPayload(t *testing.T) {
	payload := []byte(`{"event":"payment.succeeded","object":{"id":"yk-1"}}`)
	v := NewHMACVerifier("webhook-secret")
	sig := signPayload("webhook-secret", payload)

	tampered := []byte(`{"event":"payment.succeeded","object":{"id":"yk-2"}}`)
	if err := v.Verify(tampered, sig); err == nil {
		t.Fatal("expected tampered payload to fail verification")
	}
}

func TestHMACVerifier_MissingSignature(t *testing.T) {
	v := NewHMACVerifier("webhook-secret")

	err := v.Verify([]byte(`{}`), "")
	if err == nil {
		t.Fatal("expected missing signature to fail")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeAuthSignatureMissing {
		t.Errorf("expected code %s, got %s", types.ErrCodeAuthSignatureMissing, appErr.Code)
	}
}

func TestHMACVerifier_SkippedWithoutSecret(t *testing.T) {
	v := NewHMACVerifier("")

	if v.Enabled() {
		t.Error("verifier without a secret must report disabled")
	}
	if err := v.Verify([]byte(`{}`), ""); err != nil {
		t.Errorf("verification must be skipped without a secret, got: %v", err)
	}
}
