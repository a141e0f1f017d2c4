package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/eventick/ms-go-ticketing/app/provider"
	"github.com/eventick/ms-go-ticketing/app/types"
)

func TestCheckoutDerivesAmountFromUnpaidAttendances(t *testing.T) {
	repo := newFakeTxnRepo()
	repo.addAttendance(1, 7, 100, "£12.50")
	repo.addAttendance(2, 7, 101, "Free")
	repo.addAttendance(3, 7, 102, "1,200")
	repo.addAttendance(4, 8, 100, "£99.99") // another user's row
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, &fakeProvider{})

	item, err := svc.Checkout(context.Background(), &types.CheckoutRequest{
		UserID:   7,
		Provider: "card",
		Amount:   1, // ignored: amount is always derived server-side
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if item.AmountCents != 1250+0+120000 {
		t.Fatalf("expected amount 121250, got %d", item.AmountCents)
	}
	if item.Currency != "GBP" {
		t.Fatalf("expected default currency GBP, got %q", item.Currency)
	}
	if item.Status != int32(types.TransactionStatusPending) {
		t.Fatalf("expected pending status, got %d", item.Status)
	}
	if len(item.AttendanceIDs) != 3 {
		t.Fatalf("expected 3 attendance ids, got %v", item.AttendanceIDs)
	}
	if item.CardIntentID == nil || *item.CardIntentID != "pi_test_123" {
		t.Fatalf("expected card intent id to be attached, got %v", item.CardIntentID)
	}
	if item.ClientSecret == nil || *item.ClientSecret == "" {
		t.Fatal("expected client secret to be returned")
	}
}

func TestCheckoutNothingToChargeWhenNoUnpaidAttendances(t *testing.T) {
	repo := newFakeTxnRepo()
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, &fakeProvider{})

	_, err := svc.Checkout(context.Background(), &types.CheckoutRequest{UserID: 7})
	if !errors.Is(err, ErrNothingToCharge) {
		t.Fatalf("expected ErrNothingToCharge, got %v", err)
	}
}

func TestCheckoutNothingToChargeWhenTotalIsZero(t *testing.T) {
	repo := newFakeTxnRepo()
	repo.addAttendance(1, 7, 100, "Free")
	repo.addAttendance(2, 7, 101, "0")
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, &fakeProvider{})

	_, err := svc.Checkout(context.Background(), &types.CheckoutRequest{UserID: 7})
	if !errors.Is(err, ErrNothingToCharge) {
		t.Fatalf("expected ErrNothingToCharge, got %v", err)
	}
	if len(repo.txns) != 0 {
		t.Fatalf("expected no ledger row for a zero total, got %d", len(repo.txns))
	}
}

func TestCheckoutProviderRejectionFailsTransaction(t *testing.T) {
	repo := newFakeTxnRepo()
	repo.addAttendance(1, 7, 100, "£10")
	p := &fakeProvider{createErr: fmt.Errorf("%w: card declined", provider.ErrRejected)}
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, p)

	_, err := svc.Checkout(context.Background(), &types.CheckoutRequest{UserID: 7})
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}

	stored := repo.txns[1]
	if stored == nil {
		t.Fatal("expected ledger row to exist")
	}
	if stored.Status != int32(types.TransactionStatusFailed) {
		t.Fatalf("expected failed status after rejection, got %d", stored.Status)
	}
}

func TestCheckoutProviderOutageLeavesTransactionPending(t *testing.T) {
	repo := newFakeTxnRepo()
	repo.addAttendance(1, 7, 100, "£10")
	p := &fakeProvider{createErr: fmt.Errorf("%w: connect timeout", provider.ErrUnavailable)}
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, p)

	_, err := svc.Checkout(context.Background(), &types.CheckoutRequest{UserID: 7})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	stored := repo.txns[1]
	if stored == nil {
		t.Fatal("expected ledger row to exist")
	}
	if stored.Status != int32(types.TransactionStatusPending) {
		t.Fatalf("expected pending status after outage, got %d", stored.Status)
	}
}

func TestCheckoutUnknownProviderRejected(t *testing.T) {
	repo := newFakeTxnRepo()
	repo.addAttendance(1, 7, 100, "£10")
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, &fakeProvider{})

	_, err := svc.Checkout(context.Background(), &types.CheckoutRequest{UserID: 7, Provider: "crypto"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestGetTransactionEnforcesOwnership(t *testing.T) {
	repo := newFakeTxnRepo()
	repo.addAttendance(1, 7, 100, "£10")
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, &fakeProvider{})

	item, err := svc.Checkout(context.Background(), &types.CheckoutRequest{UserID: 7})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if _, err := svc.GetTransaction(context.Background(), &types.GetTransactionRequest{ID: item.ID, UserID: 7}); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := svc.GetTransaction(context.Background(), &types.GetTransactionRequest{ID: item.ID, UserID: 8}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another user, got %v", err)
	}
	if _, err := svc.GetTransaction(context.Background(), &types.GetTransactionRequest{ID: 99, UserID: 7}); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestListLedgerEventsReturnsAuditTrail(t *testing.T) {
	repo := newFakeTxnRepo()
	repo.addAttendance(1, 7, 100, "£10")
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, &fakeProvider{})

	item, err := svc.Checkout(context.Background(), &types.CheckoutRequest{UserID: 7})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.Capture(context.Background(), &types.CaptureRequest{UserID: 7, ProviderChargeID: *item.CardIntentID}); err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	events, err := svc.ListLedgerEvents(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("list ledger events failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].EventType != "transaction_created" || events[1].EventType != "charge_captured" {
		t.Fatalf("unexpected audit trail: %q, %q", events[0].EventType, events[1].EventType)
	}
	if events[1].OldStatus == nil || *events[1].OldStatus != int32(types.TransactionStatusPending) {
		t.Fatal("expected capture event to record the pending predecessor")
	}
}
