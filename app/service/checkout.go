package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/monitoring"
	"github.com/eventick/ms-go-ticketing/app/provider"
	"github.com/eventick/ms-go-ticketing/app/repository"
	"github.com/eventick/ms-go-ticketing/app/types"
)

// Checkout opens a charge for everything the user has registered for but not
// yet paid. The amount is always derived server-side from the attendance
// price texts; any client-supplied amount is ignored.
func (s *PaymentService) Checkout(ctx context.Context, req *types.CheckoutRequest) (*entity.Transaction, error) {
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

	currency := req.Currency
	if currency == "" {
		currency = s.paymentsCfg.DefaultCurrency
	}

	item, err := s.txnRepo.CreateForCheckout(ctx, req.UserID, int32(providerCode), currency, s.calculator.TotalCents)
	if err != nil {
		if errors.Is(err, repository.ErrNothingToCharge) {
			return nil, ErrNothingToCharge
		}
		return nil, err
	}

	monitoring.TransactionsCreated.WithLabelValues(providerCode.String()).Inc()

	output, err := providerClient.CreateCharge(ctx, &provider.CreateInput{
		Reference:   strconv.FormatUint(item.ID, 10),
		AmountCents: item.AmountCents,
		Currency:    item.Currency,
		Metadata: map[string]string{
			"user_id": strconv.FormatUint(item.UserID, 10),
		},
	})
	if err != nil {
		return nil, s.failOpenCharge(ctx, item, err)
	}

	now := time.Now().UTC()
	if err := s.txnRepo.AttachProviderCharge(ctx, item.ID, item.Provider, output.ChargeID, output.ClientSecret, now); err != nil {
		return nil, err
	}

	chargeID := output.ChargeID
	clientSecret := output.ClientSecret
	if providerCode == types.ProviderTypeWallet {
		item.WalletOrderID = &chargeID
	} else {
		item.CardIntentID = &chargeID
	}
	item.ClientSecret = &clientSecret
	item.UpdatedAt = now

	return item, nil
}

// failOpenCharge handles a provider error during charge creation. A provider
// rejection fails the fresh row; an outage leaves it pending so the reconcile
// job and a later retry can still act on it.
func (s *PaymentService) failOpenCharge(ctx context.Context, item *entity.Transaction, cause error) error {
	if errors.Is(cause, provider.ErrRejected) {
		reason := truncate(cause.Error(), 255)
		if _, err := s.txnRepo.Transition(ctx, repository.TransitionInput{
			TransactionID: item.ID,
			Target:        types.TransactionStatusFailed,
			EventType:     "charge_rejected",
			PayloadJSON:   &reason,
			Now:           time.Now().UTC(),
		}); err != nil {
			s.logger.WithError(err).WithField("transaction_id", item.ID).
				Error("failed to mark rejected charge as failed")
		} else {
			monitoring.TransitionsApplied.WithLabelValues(types.TransactionStatusFailed.String()).Inc()
		}
		return fmt.Errorf("%w: %v", ErrProviderRejected, cause)
	}

	s.logger.WithError(cause).WithField("transaction_id", item.ID).
		Warn("provider unavailable during checkout, transaction stays pending")
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, cause)
}

func (s *PaymentService) GetTransaction(ctx context.Context, req *types.GetTransactionRequest) (*entity.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	item, err := s.txnRepo.FindByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrTransactionNotFound
	}
	if req.UserID != 0 && item.UserID != req.UserID {
		return nil, ErrForbidden
	}
	return item, nil
}

// ListLedgerEvents returns the audit trail for one transaction, oldest first.
// Callers are expected to have resolved the transaction (and its ownership)
// through GetTransaction first.
func (s *PaymentService) ListLedgerEvents(ctx context.Context, transactionID uint64) ([]*entity.LedgerEvent, error) {
	return s.ledgerRepo.ListByTransactionID(ctx, transactionID)
}
