package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/monitoring"
	"github.com/eventick/ms-go-ticketing/app/repository"
	"github.com/eventick/ms-go-ticketing/app/types"
)

// HandleWebhook ingests one provider callback. Signature verification is
// mandatory and happens before anything else; unverified payloads never reach
// the ledger. Redelivered events are acknowledged without mutating state.
func (s *PaymentService) HandleWebhook(ctx context.Context, req *types.WebhookRequest) (*entity.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	providerCode, err := types.ParseProvider(req.Provider)
	if err != nil {
		return nil, ErrProviderUnsupported
	}
	providerClient, err := s.providerReg.Get(int32(providerCode))
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	event, err := providerClient.VerifyAndParseWebhook(ctx, req.Payload, req.Signature)
	if err != nil {
		monitoring.WebhooksReceived.WithLabelValues(providerCode.String(), "rejected").Inc()
		if recordErr := s.persistWebhookRecord(ctx, nil, req, "", entity.WebhookRecordRejected,
			fmt.Sprintf("webhook verification failed: %v", err)); recordErr != nil {
			return nil, recordErr
		}
		return nil, ErrWebhookRejected
	}

	item, err := s.txnRepo.FindByProviderChargeID(ctx, int32(providerCode), event.ChargeID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		monitoring.WebhooksReceived.WithLabelValues(providerCode.String(), "unknown_charge").Inc()
		if recordErr := s.persistWebhookRecord(ctx, nil, req, event.EventType, entity.WebhookRecordRejected,
			"no transaction for charge id"); recordErr != nil {
			return nil, recordErr
		}
		return nil, ErrTransactionNotFound
	}

	if event.NewStatus == types.TransactionStatusUnspecified {
		// Event types we do not act on are acknowledged so the provider
		// stops redelivering them.
		monitoring.WebhooksReceived.WithLabelValues(providerCode.String(), "ignored").Inc()
		if recordErr := s.persistWebhookRecord(ctx, &item.ID, req, event.EventType, entity.WebhookRecordProcessed, ""); recordErr != nil {
			return nil, recordErr
		}
		return item, nil
	}

	payloadJSON := string(req.Payload)
	result, err := s.applyTransition(ctx, repository.TransitionInput{
		TransactionID:   item.ID,
		Target:          event.NewStatus,
		EventType:       webhookEventType(event.EventType),
		ProviderEventID: event.ProviderEventID,
		PayloadJSON:     &payloadJSON,
		Now:             time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Out-of-order or contradictory event. Acknowledge it so the
			// provider stops retrying, but keep a trace.
			s.logger.WithFields(map[string]interface{}{
				"transaction_id": item.ID,
				"event_type":     event.EventType,
				"status":         types.TransactionStatus(item.Status).String(),
				"target":         event.NewStatus.String(),
			}).Warn("webhook requested an invalid status transition")
			monitoring.WebhooksReceived.WithLabelValues(providerCode.String(), "invalid_transition").Inc()
			if recordErr := s.persistWebhookRecord(ctx, &item.ID, req, event.EventType, entity.WebhookRecordRejected,
				"invalid status transition"); recordErr != nil {
				return nil, recordErr
			}
			return item, nil
		}
		return nil, err
	}

	outcome := "applied"
	if !result.Applied {
		outcome = "redelivered"
	}
	monitoring.WebhooksReceived.WithLabelValues(providerCode.String(), outcome).Inc()

	if err := s.persistWebhookRecord(ctx, &item.ID, req, event.EventType, entity.WebhookRecordProcessed, ""); err != nil {
		return nil, err
	}

	return result.Transaction, nil
}

func (s *PaymentService) persistWebhookRecord(
	ctx context.Context,
	transactionID *uint64,
	req *types.WebhookRequest,
	eventType string,
	status int32,
	reason string,
) error {
	now := time.Now().UTC()
	record := &entity.WebhookRecord{
		TransactionID: transactionID,
		Provider:      strings.ToLower(strings.TrimSpace(req.Provider)),
		EventType:     eventType,
		Signature:     req.Signature,
		PayloadJSON:   string(req.Payload),
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if reason != "" {
		trimmed := truncate(reason, 1024)
		record.Error = &trimmed
	}
	return s.webhookRepo.Create(ctx, record)
}

func webhookEventType(eventType string) string {
	trimmed := strings.TrimSpace(eventType)
	if trimmed == "" {
		return "provider_webhook"
	}
	return trimmed
}
