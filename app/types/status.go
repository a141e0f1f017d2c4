package types

// TransactionStatus is the ledger row state machine:
// pending -> succeeded | failed, succeeded -> refunded.
// failed and refunded are terminal.
type TransactionStatus int32

const (
	TransactionStatusUnspecified TransactionStatus = 0
	TransactionStatusPending     TransactionStatus = 1
	TransactionStatusSucceeded   TransactionStatus = 2
	TransactionStatusFailed      TransactionStatus = 3
	TransactionStatusRefunded    TransactionStatus = 4
)

func (s TransactionStatus) String() string {
	switch s {
	case TransactionStatusPending:
		return "pending"
	case TransactionStatusSucceeded:
		return "succeeded"
	case TransactionStatusFailed:
		return "failed"
	case TransactionStatusRefunded:
		return "refunded"
	default:
		return "unspecified"
	}
}

// Terminal reports whether no further transition is permitted from s.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusFailed || s == TransactionStatusRefunded
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to TransactionStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case TransactionStatusSucceeded, TransactionStatusFailed:
		return from == TransactionStatusPending
	case TransactionStatusRefunded:
		return from == TransactionStatusSucceeded
	default:
		return false
	}
}

// StatusReached reports whether current already is target, or a state the
// settlement path passes through target to get to. Used to treat redelivered
// triggers as no-ops rather than errors.
func StatusReached(current, target TransactionStatus) bool {
	if current == target {
		return true
	}
	return target == TransactionStatusSucceeded && current == TransactionStatusRefunded
}

// ProviderType identifies which external payment provider owns a charge.
type ProviderType int32

const (
	ProviderTypeUnspecified ProviderType = 0
	ProviderTypeCard        ProviderType = 1
	ProviderTypeWallet      ProviderType = 2
)

func (p ProviderType) String() string {
	switch p {
	case ProviderTypeCard:
		return "card"
	case ProviderTypeWallet:
		return "wallet"
	default:
		return "unspecified"
	}
}

// Attendance payment states, written exclusively by the reconciliation engine
// once a transaction reaches succeeded or refunded.
type AttendancePaymentStatus int32

const (
	AttendanceUnpaid   AttendancePaymentStatus = 0
	AttendancePaid     AttendancePaymentStatus = 1
	AttendanceRefunded AttendancePaymentStatus = 2
)

// Attendance lifecycle states. Cancelled rows are kept, never deleted.
type AttendanceStatus int32

const (
	AttendanceActive    AttendanceStatus = 1
	AttendanceCancelled AttendanceStatus = 2
)
