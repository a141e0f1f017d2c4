package repository

import (
	"context"

	"github.com/eventick/ms-go-ticketing/app/entity"
)

type WebhookRecordRepository struct {
	db DBTX
}

func NewWebhookRecordRepository(db DBTX) *WebhookRecordRepository {
	return &WebhookRecordRepository{db: db}
}

func (r *WebhookRecordRepository) Create(ctx context.Context, record *entity.WebhookRecord) error {
	query := `
		INSERT INTO payment_webhook_records (
			transaction_id, provider, event_type, signature, payload_json, status, error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var transactionID interface{}
	if record.TransactionID != nil {
		transactionID = *record.TransactionID
	}

	result, err := r.db.ExecContext(ctx, query,
		transactionID,
		record.Provider,
		record.EventType,
		record.Signature,
		record.PayloadJSON,
		record.Status,
		nullableStringValue(record.Error),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	record.ID = uint64(id)

	return nil
}
