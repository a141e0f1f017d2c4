package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/types"
)

// Attendance rows are created by the registration flow outside this service;
// the reconciliation engine only ever snapshots unpaid rows and flips their
// payment columns. These helpers run inside the transaction repository's SQL
// transactions so ledger and attendance writes commit or roll back together.

func lockUnpaidAttendances(ctx context.Context, q DBTX, userID uint64) ([]*entity.Attendance, error) {
	query := `
		SELECT id, user_id, event_id, price_text, status, payment_status,
			payment_intent_id, payment_date, created_at, updated_at
		FROM event_attendances
		WHERE user_id = ?
		  AND status = ?
		  AND payment_status = ?
		ORDER BY id ASC
		FOR UPDATE
	`

	rows, err := q.QueryContext(ctx, query, userID, int32(types.AttendanceActive), int32(types.AttendanceUnpaid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Attendance, 0)
	for rows.Next() {
		item := &entity.Attendance{}
		var intentID sql.NullString
		var paymentDate sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.EventID,
			&item.PriceText,
			&item.Status,
			&item.PaymentStatus,
			&intentID,
			&paymentDate,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.PaymentIntentID = stringPtrFromNull(intentID)
		item.PaymentDate = timePtrFromNull(paymentDate)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func markAttendancesPaid(ctx context.Context, q DBTX, ids []uint64, chargeID string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE event_attendances
		SET payment_status = ?, payment_intent_id = ?, payment_date = ?, updated_at = ?
		WHERE id IN (` + placeholders(len(ids)) + `)
	`

	args := []interface{}{int32(types.AttendancePaid), chargeID, now, now}
	args = append(args, idArgs(ids)...)

	_, err := q.ExecContext(ctx, query, args...)
	return err
}

func markAttendancesRefunded(ctx context.Context, q DBTX, ids []uint64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE event_attendances
		SET payment_status = ?, updated_at = ?
		WHERE id IN (` + placeholders(len(ids)) + `)
	`

	args := []interface{}{int32(types.AttendanceRefunded), now}
	args = append(args, idArgs(ids)...)

	_, err := q.ExecContext(ctx, query, args...)
	return err
}
