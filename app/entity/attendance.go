package entity

import "time"

// Attendance is a user's ticket claim on an event. Rows are unique on
// (UserID, EventID); cancellation marks the row, it is never deleted, and
// re-registration reactivates it. PaymentStatus is written only by the
// reconciliation engine once a transaction settles.
type Attendance struct {
	ID uint64

	UserID  uint64
	EventID uint64

	// PriceText is the event's free-text price as it stood at registration
	// ("£12.50", "Free", "1,200", ...). Untrusted input for the calculator.
	PriceText string

	Status        int32
	PaymentStatus int32

	// PaymentIntentID is a back-reference to the settling transaction's
	// provider charge id, for traceability.
	PaymentIntentID *string
	PaymentDate     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
