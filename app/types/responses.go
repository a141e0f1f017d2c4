package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string          `json:"status"`
	Providers map[string]bool `json:"providers"`
}

type LedgerEvent struct {
	ID              uint64 `json:"id"`
	EventType       string `json:"event_type"`
	OldStatus       string `json:"old_status,omitempty"`
	NewStatus       string `json:"new_status"`
	ProviderEventID string `json:"provider_event_id,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type Transaction struct {
	ID               uint64   `json:"id"`
	UserID           uint64   `json:"user_id"`
	AmountCents      int64    `json:"amount_cents"`
	Currency         string   `json:"currency"`
	Status           string   `json:"status"`
	Provider         string   `json:"provider"`
	ProviderChargeID string   `json:"provider_charge_id,omitempty"`
	ClientSecret     string   `json:"client_secret,omitempty"`
	AttendanceIDs    []uint64 `json:"attendance_ids"`
	RefundID         string   `json:"refund_id,omitempty"`
	RefundReason     string   `json:"refund_reason,omitempty"`
	RefundedAt       string   `json:"refunded_at,omitempty"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`

	// Audit trail, populated only on single-transaction reads.
	Events []*LedgerEvent `json:"events,omitempty"`
}

type TransactionEnvelopeResponse struct {
	Transaction *Transaction `json:"transaction"`
}
