package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/types"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrNothingToCharge means the user had no unpaid attendances, or their
	// computed total was not positive. No ledger row is created.
	ErrNothingToCharge = errors.New("nothing to charge")

	// ErrInvalidTransition is the ledger's state machine guard: the
	// requested status is not reachable from the row's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

const transactionColumns = `
	id, user_id, amount_cents, currency, status, provider,
	card_intent_id, wallet_order_id, client_secret, attendance_ids_json,
	refund_id, refund_reason, refunded_at,
	notify_status, notify_attempts, notify_next_at, notify_last_error,
	created_at, updated_at`

// TransitionInput describes one requested state-machine transition together
// with the audit trail entry recorded alongside it.
type TransitionInput struct {
	TransactionID uint64
	Target        types.TransactionStatus

	EventType       string
	ProviderEventID *string
	PayloadJSON     *string

	// Refund fields, populated only for pending -> refunded triggers.
	RefundID     *string
	RefundReason *string

	Now time.Time
}

// TransitionResult reports whether the transition mutated state. Applied is
// false when the row had already reached the target (redelivered trigger).
type TransitionResult struct {
	Applied     bool
	Transaction *entity.Transaction
}

// TransactionRepository owns the payment_transactions ledger. It holds the
// *sql.DB rather than a DBTX because checkout creation and status transitions
// each span multiple statements that must commit atomically.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// CreateForCheckout snapshots the user's unpaid active attendances and
// inserts the pending ledger row in one SQL transaction, so no attendance can
// slip in between amount calculation and row creation. totalFn is the pure
// amount calculator. No provider has been contacted yet when this returns.
func (r *TransactionRepository) CreateForCheckout(
	ctx context.Context,
	userID uint64,
	provider int32,
	currency string,
	totalFn func([]*entity.Attendance) int64,
) (*entity.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	items, err := lockUnpaidAttendances(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNothingToCharge
	}

	total := totalFn(items)
	if total <= 0 {
		return nil, ErrNothingToCharge
	}

	attendanceIDs := make([]uint64, 0, len(items))
	for _, item := range items {
		attendanceIDs = append(attendanceIDs, item.ID)
	}
	idsJSON, err := serializeIDs(attendanceIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &entity.Transaction{
		UserID:        userID,
		AmountCents:   total,
		Currency:      currency,
		Status:        int32(types.TransactionStatusPending),
		Provider:      provider,
		AttendanceIDs: attendanceIDs,
		NotifyStatus:  entity.NotifyNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO payment_transactions (
			user_id, amount_cents, currency, status, provider,
			card_intent_id, wallet_order_id, client_secret, attendance_ids_json,
			refund_id, refund_reason, refunded_at,
			notify_status, notify_attempts, notify_next_at, notify_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL, ?, NULL, NULL, NULL, ?, 0, NULL, NULL, ?, ?)
	`,
		item.UserID,
		item.AmountCents,
		item.Currency,
		item.Status,
		item.Provider,
		idsJSON,
		item.NotifyStatus,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	item.ID = uint64(id)

	if err := insertLedgerEvent(ctx, tx, &entity.LedgerEvent{
		TransactionID: item.ID,
		EventType:     "transaction_created",
		NewStatus:     item.Status,
		CreatedAt:     now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return item, nil
}

// AttachProviderCharge records the provider-side identifiers once the charge
// has been opened. The field written depends on which provider owns the row.
func (r *TransactionRepository) AttachProviderCharge(ctx context.Context, transactionID uint64, provider int32, chargeID, clientSecret string, now time.Time) error {
	column := "card_intent_id"
	if provider == int32(types.ProviderTypeWallet) {
		column = "wallet_order_id"
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET `+column+` = ?, client_secret = ?, updated_at = ?
		WHERE id = ?
	`, chargeID, clientSecret, now, transactionID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uint64) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = ?`

	item := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, id), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

// FindByProviderChargeID is the webhook ingestion lookup; both provider id
// columns are indexed since webhook volume can exceed normal query patterns.
func (r *TransactionRepository) FindByProviderChargeID(ctx context.Context, provider int32, chargeID string) (*entity.Transaction, error) {
	column := "card_intent_id"
	if provider == int32(types.ProviderTypeWallet) {
		column = "wallet_order_id"
	}

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE ` + column + ` = ? LIMIT 1`

	item := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, chargeID), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

// Transition applies one guarded state-machine step. The row is re-read under
// a row lock, the current status is checked against the target, and the
// ledger update, attendance updates and audit event commit as one unit.
// Redelivered triggers (target already reached) return Applied=false with no
// mutation, leaving updated_at untouched. Illegal transitions return
// ErrInvalidTransition.
func (r *TransactionRepository) Transition(ctx context.Context, in TransitionInput) (*TransitionResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = ? FOR UPDATE`
	item := &entity.Transaction{}
	if err := scanTransaction(tx.QueryRowContext(ctx, query, in.TransactionID), item); err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	} else if err != nil {
		return nil, err
	}

	current := types.TransactionStatus(item.Status)
	if types.StatusReached(current, in.Target) {
		// Redelivery of an already-applied trigger.
		return &TransitionResult{Applied: false, Transaction: item}, nil
	}
	if !types.CanTransition(current, in.Target) {
		return nil, ErrInvalidTransition
	}

	oldStatus := item.Status
	item.Status = int32(in.Target)
	item.UpdatedAt = in.Now
	if in.Target == types.TransactionStatusRefunded {
		refundedAt := in.Now
		item.RefundedAt = &refundedAt
		item.RefundID = in.RefundID
		item.RefundReason = in.RefundReason
	}

	// Every applied transition is notified to the audit sink.
	item.NotifyStatus = entity.NotifyPending
	item.NotifyAttempts = 0
	notifyAt := in.Now
	item.NotifyNextAt = &notifyAt
	item.NotifyLastErr = nil

	if _, err := tx.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = ?, refund_id = ?, refund_reason = ?, refunded_at = ?,
			notify_status = ?, notify_attempts = ?, notify_next_at = ?, notify_last_error = ?,
			updated_at = ?
		WHERE id = ?
	`,
		item.Status,
		nullableStringValue(item.RefundID),
		nullableStringValue(item.RefundReason),
		nullableTimeValue(item.RefundedAt),
		item.NotifyStatus,
		item.NotifyAttempts,
		nullableTimeValue(item.NotifyNextAt),
		nullableStringValue(item.NotifyLastErr),
		item.UpdatedAt,
		item.ID,
	); err != nil {
		return nil, err
	}

	switch in.Target {
	case types.TransactionStatusSucceeded:
		chargeID := ""
		if id := item.ProviderChargeID(); id != nil {
			chargeID = *id
		}
		if err := markAttendancesPaid(ctx, tx, item.AttendanceIDs, chargeID, in.Now); err != nil {
			return nil, err
		}
	case types.TransactionStatusRefunded:
		if err := markAttendancesRefunded(ctx, tx, item.AttendanceIDs, in.Now); err != nil {
			return nil, err
		}
	}

	if err := insertLedgerEvent(ctx, tx, &entity.LedgerEvent{
		TransactionID:   item.ID,
		EventType:       in.EventType,
		OldStatus:       &oldStatus,
		NewStatus:       item.Status,
		ProviderEventID: in.ProviderEventID,
		PayloadJSON:     in.PayloadJSON,
		CreatedAt:       in.Now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &TransitionResult{Applied: true, Transaction: item}, nil
}

// ListStalePending returns pending rows with a provider charge attached that
// have not moved since before, for the reconcile job.
func (r *TransactionRepository) ListStalePending(ctx context.Context, before time.Time, limit int32) ([]*entity.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE status = ?
		  AND (card_intent_id IS NOT NULL OR wallet_order_id IS NOT NULL)
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	return r.list(ctx, query, int32(types.TransactionStatusPending), before, limit)
}

// ListDueNotify returns rows whose audit-sink notification is due.
func (r *TransactionRepository) ListDueNotify(ctx context.Context, now time.Time, limit int32) ([]*entity.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE notify_status = ?
		  AND notify_next_at IS NOT NULL
		  AND notify_next_at <= ?
		ORDER BY notify_next_at ASC
		LIMIT ?
	`

	return r.list(ctx, query, entity.NotifyPending, now, limit)
}

// UpdateNotifyState persists only the audit-sink delivery bookkeeping.
func (r *TransactionRepository) UpdateNotifyState(ctx context.Context, item *entity.Transaction) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET notify_status = ?, notify_attempts = ?, notify_next_at = ?, notify_last_error = ?, updated_at = ?
		WHERE id = ?
	`,
		item.NotifyStatus,
		item.NotifyAttempts,
		nullableTimeValue(item.NotifyNextAt),
		nullableStringValue(item.NotifyLastErr),
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Transaction, 0)
	for rows.Next() {
		item := &entity.Transaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(scan rowScanner, item *entity.Transaction) error {
	var cardIntentID sql.NullString
	var walletOrderID sql.NullString
	var clientSecret sql.NullString
	var attendanceIDsJSON string
	var refundID sql.NullString
	var refundReason sql.NullString
	var refundedAt sql.NullTime
	var notifyNextAt sql.NullTime
	var notifyLastErr sql.NullString

	err := scan.Scan(
		&item.ID,
		&item.UserID,
		&item.AmountCents,
		&item.Currency,
		&item.Status,
		&item.Provider,
		&cardIntentID,
		&walletOrderID,
		&clientSecret,
		&attendanceIDsJSON,
		&refundID,
		&refundReason,
		&refundedAt,
		&item.NotifyStatus,
		&item.NotifyAttempts,
		&notifyNextAt,
		&notifyLastErr,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return err
	}

	item.CardIntentID = stringPtrFromNull(cardIntentID)
	item.WalletOrderID = stringPtrFromNull(walletOrderID)
	item.ClientSecret = stringPtrFromNull(clientSecret)
	item.RefundID = stringPtrFromNull(refundID)
	item.RefundReason = stringPtrFromNull(refundReason)
	item.RefundedAt = timePtrFromNull(refundedAt)
	item.NotifyNextAt = timePtrFromNull(notifyNextAt)
	item.NotifyLastErr = stringPtrFromNull(notifyLastErr)

	ids, err := parseIDs(attendanceIDsJSON)
	if err != nil {
		return err
	}
	item.AttendanceIDs = ids

	return nil
}
