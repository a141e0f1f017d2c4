package repository

import (
	"context"
	"database/sql"

	"github.com/eventick/ms-go-ticketing/app/entity"
)

// insertLedgerEvent appends one audit entry. It takes a DBTX so it can run
// inside the same transaction as the status update it records.
func insertLedgerEvent(ctx context.Context, q DBTX, event *entity.LedgerEvent) error {
	query := `
		INSERT INTO payment_ledger_events (
			transaction_id, event_type, old_status, new_status, provider_event_id, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := q.ExecContext(ctx, query,
		event.TransactionID,
		event.EventType,
		nullableInt32Value(event.OldStatus),
		event.NewStatus,
		nullableStringValue(event.ProviderEventID),
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}

// LedgerEventRepository reads the audit trail. Writes always happen through
// insertLedgerEvent inside the transaction repository's SQL transactions.
type LedgerEventRepository struct {
	db DBTX
}

func NewLedgerEventRepository(db DBTX) *LedgerEventRepository {
	return &LedgerEventRepository{db: db}
}

// ListByTransactionID returns the audit trail for one ledger row, oldest first.
func (r *LedgerEventRepository) ListByTransactionID(ctx context.Context, transactionID uint64) ([]*entity.LedgerEvent, error) {
	query := `
		SELECT id, transaction_id, event_type, old_status, new_status, provider_event_id, payload_json, created_at
		FROM payment_ledger_events
		WHERE transaction_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.LedgerEvent, 0)
	for rows.Next() {
		item := &entity.LedgerEvent{}
		var oldStatus sql.NullInt32
		var providerEventID, payloadJSON sql.NullString
		if err := rows.Scan(
			&item.ID,
			&item.TransactionID,
			&item.EventType,
			&oldStatus,
			&item.NewStatus,
			&providerEventID,
			&payloadJSON,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		if oldStatus.Valid {
			v := oldStatus.Int32
			item.OldStatus = &v
		}
		item.ProviderEventID = stringPtrFromNull(providerEventID)
		item.PayloadJSON = stringPtrFromNull(payloadJSON)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
