package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"payflow/internal/types"
)

// WebhookVerifier authenticates inbound gateway webhook deliveries.
type WebhookVerifier interface {
	// Verify checks the signature header against the raw request body.
	// Returns nil when the delivery is authentic.
	Verify(payload []byte, signature string) error
}

// HMACVerifier implements WebhookVerifier with HMAC-SHA256 over the raw
// request body, hex-encoded, compared in constant time.
//
// When no secret is configured, verification is skipped entirely: local and
// demo deployments have no signing material, and rejecting everything would
// make webhook testing impossible. Production deployments set the secret.
type HMACVerifier struct {
	secret types.SecretString
}

// NewHMACVerifier creates a webhook verifier with the given shared secret.
func NewHMACVerifier(secret types.SecretString) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

// Enabled reports whether a signing secret is configured.
func (v *HMACVerifier) Enabled() bool {
	return v.secret.IsSet()
}

// Verify checks the hex-encoded HMAC-SHA256 signature of the payload.
func (v *HMACVerifier) Verify(payload []byte, signature string) error {
	if !v.secret.IsSet() {
		return nil
	}

	if signature == "" {
		return types.NewAppError(
			types.ErrCodeAuthSignatureMissing,
			"webhook signature header is missing",
			nil,
		)
	}

	mac := hmac.New(sha256.New, []byte(v.secret.Unmask()))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return types.NewAppError(
			types.ErrCodeAuthSignatureInvalid,
			"webhook signature does not match the payload",
			nil,
		)
	}

	return nil
}

// Compile-time assertion that HMACVerifier satisfies WebhookVerifier.
var _ WebhookVerifier = (*HMACVerifier)(nil)
