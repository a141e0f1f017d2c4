package mapper

import (
	"time"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/types"
)

func TransactionToResponse(item *entity.Transaction) *types.Transaction {
	if item == nil {
		return nil
	}

	out := &types.Transaction{
		ID:            item.ID,
		UserID:        item.UserID,
		AmountCents:   item.AmountCents,
		Currency:      item.Currency,
		Status:        types.TransactionStatus(item.Status).String(),
		Provider:      types.ProviderType(item.Provider).String(),
		AttendanceIDs: item.AttendanceIDs,
		CreatedAt:     item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     item.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if id := item.ProviderChargeID(); id != nil {
		out.ProviderChargeID = *id
	}
	if item.ClientSecret != nil {
		out.ClientSecret = *item.ClientSecret
	}
	if item.RefundID != nil {
		out.RefundID = *item.RefundID
	}
	if item.RefundReason != nil {
		out.RefundReason = *item.RefundReason
	}
	if item.RefundedAt != nil {
		out.RefundedAt = item.RefundedAt.UTC().Format(time.RFC3339)
	}

	return out
}

func LedgerEventsToResponse(items []*entity.LedgerEvent) []*types.LedgerEvent {
	if len(items) == 0 {
		return nil
	}

	out := make([]*types.LedgerEvent, 0, len(items))
	for _, item := range items {
		event := &types.LedgerEvent{
			ID:        item.ID,
			EventType: item.EventType,
			NewStatus: types.TransactionStatus(item.NewStatus).String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
		}
		if item.OldStatus != nil {
			event.OldStatus = types.TransactionStatus(*item.OldStatus).String()
		}
		if item.ProviderEventID != nil {
			event.ProviderEventID = *item.ProviderEventID
		}
		out = append(out, event)
	}
	return out
}
