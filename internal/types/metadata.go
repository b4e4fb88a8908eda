package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure PaymentMetadata implements both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
var (
	_ sql.Scanner   = (*PaymentMetadata)(nil)
	_ driver.Valuer = PaymentMetadata{}
)

// PaymentMetadata is the structured data attached to a payment at creation
// and read back by the webhook reconciler when the gateway confirms the
// charge. The known keys are explicit fields so that reconciliation and
// renewal logic can be exhaustively checked; unknown keys are dropped on
// scan rather than carried as an untyped map.
type PaymentMetadata struct {
	PlanType      PlanType      `json:"plan_type"`
	BillingPeriod BillingPeriod `json:"billing_period"`
	AutoRenewal   bool          `json:"auto_renewal,omitempty"`
	DemoMode      bool          `json:"demo_mode,omitempty"`
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (m *PaymentMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = PaymentMetadata{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("payment metadata: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, m)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (m PaymentMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// GatewayMetadata returns the subset of metadata submitted to the payment
// gateway on charge creation. The gateway echoes it back on webhooks, which
// is useful for manual reconciliation but never authoritative: the local
// payment row's metadata is the source of truth for the grant.
func (m PaymentMetadata) GatewayMetadata(userID string) map[string]string {
	out := map[string]string{
		"user_id":        userID,
		"plan_type":      string(m.PlanType),
		"billing_period": string(m.BillingPeriod),
	}
	if m.AutoRenewal {
		out["auto_renewal"] = "true"
	}
	return out
}
