package types

import "github.com/shopspring/decimal"

// ChargeRequest is the inbound half of the payment gateway contract: one
// logical charge attempt submitted for redirect-based confirmation.
//
// IdempotenceKey is freshly generated per logical attempt. Re-initiating
// after a failed or ambiguous attempt is a NEW logical attempt with a new
// key; the gateway client never reuses one.
type ChargeRequest struct {
	IdempotenceKey string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	ReturnURL      string
	Metadata       map[string]string
}

// ChargeResult is the gateway's answer to a ChargeRequest.
type ChargeResult struct {
	// ExternalID is the gateway's payment identifier, used later to match
	// the confirmation webhook to the local payment row.
	ExternalID string
	// Status is the gateway-reported initial payment status.
	Status PaymentStatus
	// ConfirmationURL is where the customer completes the charge.
	ConfirmationURL string
	// PaymentMethod is the method type reported by the gateway, if any.
	PaymentMethod *string
}

// WebhookEvent is the gateway's webhook envelope: an event name plus the
// payment object it concerns.
type WebhookEvent struct {
	Event  string        `json:"event"`
	Object WebhookObject `json:"object"`
}

// WebhookObject is the payment snapshot carried inside a webhook event.
// Metadata echoed by the gateway is intentionally absent: the local payment
// row is the source of truth for reconciliation.
type WebhookObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
