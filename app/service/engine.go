package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/monitoring"
	"github.com/eventick/ms-go-ticketing/app/provider"
	"github.com/eventick/ms-go-ticketing/app/repository"
	"github.com/eventick/ms-go-ticketing/app/types"
)

// applyTransition funnels every status change through the guarded ledger
// update and keeps the metrics in step with it.
func (s *PaymentService) applyTransition(ctx context.Context, in repository.TransitionInput) (*repository.TransitionResult, error) {
	result, err := s.txnRepo.Transition(ctx, in)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	if result.Applied {
		monitoring.TransitionsApplied.WithLabelValues(in.Target.String()).Inc()
	}
	return result, nil
}

// Capture asks the provider to settle a previously opened charge and records
// the outcome. Capturing an already settled transaction is a no-op.
func (s *PaymentService) Capture(ctx context.Context, req *types.CaptureRequest) (*entity.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	item, err := s.findByChargeID(ctx, req.ProviderChargeID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrTransactionNotFound
	}
	if item.UserID != req.UserID {
		return nil, ErrForbidden
	}

	current := types.TransactionStatus(item.Status)
	if types.StatusReached(current, types.TransactionStatusSucceeded) {
		return item, nil
	}
	if current != types.TransactionStatusPending {
		return nil, ErrInvalidTransition
	}

	providerClient, err := s.providerReg.Get(item.Provider)
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	capture, err := providerClient.CaptureCharge(ctx, req.ProviderChargeID)
	if err != nil {
		if errors.Is(err, provider.ErrRejected) {
			reason := truncate(err.Error(), 255)
			result, trErr := s.applyTransition(ctx, repository.TransitionInput{
				TransactionID: item.ID,
				Target:        types.TransactionStatusFailed,
				EventType:     "charge_capture_declined",
				PayloadJSON:   &reason,
				Now:           time.Now().UTC(),
			})
			if trErr != nil {
				return nil, trErr
			}
			return result.Transaction, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	target := types.TransactionStatusSucceeded
	eventType := "charge_captured"
	var payload *string
	if !capture.Settled {
		target = types.TransactionStatusFailed
		eventType = "charge_capture_declined"
		payload = normalizeOptionalString(capture.FailureReason)
	}

	result, err := s.applyTransition(ctx, repository.TransitionInput{
		TransactionID: item.ID,
		Target:        target,
		EventType:     eventType,
		PayloadJSON:   payload,
		Now:           time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return result.Transaction, nil
}

// Refund reverses a succeeded transaction with the provider and moves the
// ledger row to refunded. Refunding an already refunded transaction is a
// no-op that returns the existing row.
func (s *PaymentService) Refund(ctx context.Context, req *types.RefundRequest) (*entity.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var item *entity.Transaction
	var err error
	if req.TransactionID != 0 {
		item, err = s.txnRepo.FindByID(ctx, req.TransactionID)
	} else {
		item, err = s.findByChargeID(ctx, req.ProviderChargeID)
	}
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrTransactionNotFound
	}

	current := types.TransactionStatus(item.Status)
	if current == types.TransactionStatusRefunded {
		return item, nil
	}
	if current != types.TransactionStatusSucceeded {
		return nil, ErrInvalidTransition
	}

	chargeID := item.ProviderChargeID()
	if chargeID == nil || strings.TrimSpace(*chargeID) == "" {
		return nil, ErrInvalidTransition
	}

	providerClient, err := s.providerReg.Get(item.Provider)
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	refund, err := providerClient.RefundCharge(ctx, *chargeID, req.Reason)
	if err != nil {
		if errors.Is(err, provider.ErrRejected) {
			return nil, fmt.Errorf("%w: %v", ErrProviderRejected, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	result, err := s.applyTransition(ctx, repository.TransitionInput{
		TransactionID: item.ID,
		Target:        types.TransactionStatusRefunded,
		EventType:     "charge_refunded",
		RefundID:      normalizeOptionalString(refund.RefundID),
		RefundReason:  normalizeOptionalString(req.Reason),
		Now:           time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return result.Transaction, nil
}

// findByChargeID checks both provider id columns; capture and refund callers
// hold the charge id but not necessarily the provider that issued it.
func (s *PaymentService) findByChargeID(ctx context.Context, chargeID string) (*entity.Transaction, error) {
	for _, code := range []types.ProviderType{types.ProviderTypeCard, types.ProviderTypeWallet} {
		item, err := s.txnRepo.FindByProviderChargeID(ctx, int32(code), chargeID)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}
	return nil, nil
}
