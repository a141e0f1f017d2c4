package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/mapper"
	"github.com/eventick/ms-go-ticketing/app/monitoring"
	"github.com/eventick/ms-go-ticketing/app/repository"
	"github.com/eventick/ms-go-ticketing/app/types"
)

// RunReconcileBatch polls the provider for pending transactions that have not
// moved in a while and applies whatever status the provider reports. Covers
// lost webhooks.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.paymentsCfg.ReconcileStaleAfter)
	items, err := s.txnRepo.ListStalePending(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, item := range items {
		if item == nil {
			continue
		}
		chargeID := item.ProviderChargeID()
		if chargeID == nil || strings.TrimSpace(*chargeID) == "" {
			continue
		}

		providerClient, err := s.providerReg.Get(item.Provider)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		newStatus, err := providerClient.GetChargeStatus(ctx, strings.TrimSpace(*chargeID))
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if newStatus == types.TransactionStatusUnspecified || newStatus == types.TransactionStatus(item.Status) {
			continue
		}

		if _, err := s.applyTransition(ctx, repository.TransitionInput{
			TransactionID: item.ID,
			Target:        newStatus,
			EventType:     "transaction_reconciled",
			Now:           now,
		}); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				s.logger.WithFields(map[string]interface{}{
					"transaction_id": item.ID,
					"target":         newStatus.String(),
				}).Warn("reconcile skipped an invalid status transition")
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunNotifyBatch delivers applied transitions to the external audit sink,
// retrying with a fixed interval up to the configured attempt cap.
func (s *PaymentService) RunNotifyBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.txnRepo.ListDueNotify(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, item := range items {
		if item == nil {
			continue
		}
		if err := s.dispatchNotify(ctx, item, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) dispatchNotify(ctx context.Context, item *entity.Transaction, now time.Time) error {
	sinkURL := strings.TrimSpace(s.paymentsCfg.AuditSinkURL)
	if sinkURL == "" {
		errMsg := "audit sink url is empty"
		item.NotifyStatus = entity.NotifyFailed
		item.NotifyNextAt = nil
		item.NotifyLastErr = &errMsg
		item.UpdatedAt = now
		return s.txnRepo.UpdateNotifyState(ctx, item)
	}

	payload := &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToResponse(item)}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sinkURL, bytes.NewReader(body))
	if err != nil {
		return s.recordNotifyFailure(ctx, item, now, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Transaction-ID", strconv.FormatUint(item.ID, 10))

	resp, err := s.notifyHTTP.Do(req)
	if err != nil {
		return s.recordNotifyFailure(ctx, item, now, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.recordNotifyFailure(ctx, item, now, fmt.Errorf("audit sink returned status=%d", resp.StatusCode))
	}

	item.NotifyStatus = entity.NotifySuccess
	item.NotifyNextAt = nil
	item.NotifyLastErr = nil
	item.UpdatedAt = now

	monitoring.NotifyDispatches.WithLabelValues("success").Inc()
	return s.txnRepo.UpdateNotifyState(ctx, item)
}

func (s *PaymentService) recordNotifyFailure(ctx context.Context, item *entity.Transaction, now time.Time, dispatchErr error) error {
	item.NotifyAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	item.NotifyLastErr = &trimmed

	maxAttempts := s.paymentsCfg.NotifyMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if item.NotifyAttempts >= maxAttempts {
		item.NotifyStatus = entity.NotifyFailed
		item.NotifyNextAt = nil
		monitoring.NotifyDispatches.WithLabelValues("failed").Inc()
	} else {
		retryInterval := s.paymentsCfg.NotifyRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		item.NotifyStatus = entity.NotifyPending
		item.NotifyNextAt = &next
		monitoring.NotifyDispatches.WithLabelValues("retry").Inc()
	}
	item.UpdatedAt = now

	if err := s.txnRepo.UpdateNotifyState(ctx, item); err != nil {
		return err
	}

	return dispatchErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
