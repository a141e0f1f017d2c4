package entity

import "time"

const (
	NotifyNone    int32 = 0
	NotifyPending int32 = 1
	NotifySuccess int32 = 10
	NotifyFailed  int32 = 20
)

// Transaction is the ledger row for one checkout attempt. The
// (AmountCents, Currency, AttendanceIDs) triple is fixed at creation and
// never recomputed; only Status, the refund fields and the timestamps mutate.
type Transaction struct {
	ID uint64

	UserID uint64

	AmountCents int64
	Currency    string

	Status   int32
	Provider int32

	// Exactly one of these is populated once a provider has been contacted:
	// the card provider's intent id or the wallet provider's order id.
	CardIntentID  *string
	WalletOrderID *string

	// ClientSecret is the provider token the client SDK needs to complete
	// payment. Returned once at checkout.
	ClientSecret *string

	// AttendanceIDs is the snapshot of attendance rows this charge settles,
	// captured at creation time.
	AttendanceIDs []uint64

	RefundID     *string
	RefundReason *string
	RefundedAt   *time.Time

	NotifyStatus   int32
	NotifyAttempts int32
	NotifyNextAt   *time.Time
	NotifyLastErr  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProviderChargeID returns whichever provider identifier is populated.
func (t *Transaction) ProviderChargeID() *string {
	if t.CardIntentID != nil {
		return t.CardIntentID
	}
	return t.WalletOrderID
}
