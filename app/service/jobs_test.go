package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/pricing"
	"github.com/eventick/ms-go-ticketing/app/provider"
	"github.com/eventick/ms-go-ticketing/app/types"
	"github.com/eventick/ms-go-ticketing/config"
)

func staleCheckout(t *testing.T, repo *fakeTxnRepo, svc *PaymentService) *entity.Transaction {
	t.Helper()
	repo.addAttendance(1, 7, 100, "£10")
	item, err := svc.Checkout(context.Background(), &types.CheckoutRequest{UserID: 7})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	stale := time.Now().UTC().Add(-2 * time.Hour)
	repo.txns[item.ID].UpdatedAt = stale
	return item
}

func TestRunReconcileBatchAppliesProviderStatus(t *testing.T) {
	repo := newFakeTxnRepo()
	p := &fakeProvider{statusResult: types.TransactionStatusSucceeded}
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, p)
	item := staleCheckout(t, repo, svc)

	if err := svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("run reconcile batch failed: %v", err)
	}

	updated, _ := repo.FindByID(context.Background(), item.ID)
	if updated.Status != int32(types.TransactionStatusSucceeded) {
		t.Fatalf("expected succeeded status after reconcile, got %d", updated.Status)
	}
	if repo.attendances[1].PaymentStatus != int32(types.AttendancePaid) {
		t.Fatal("expected attendance to be marked paid by reconcile")
	}
}

func TestRunReconcileBatchSkipsUnchangedStatus(t *testing.T) {
	repo := newFakeTxnRepo()
	p := &fakeProvider{statusResult: types.TransactionStatusPending}
	svc := newServiceForTest(repo, &fakeWebhookRepo{}, p)
	item := staleCheckout(t, repo, svc)

	if err := svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("run reconcile batch failed: %v", err)
	}

	updated, _ := repo.FindByID(context.Background(), item.ID)
	if updated.Status != int32(types.TransactionStatusPending) {
		t.Fatalf("expected status to stay pending, got %d", updated.Status)
	}
	// Only the creation event: no transition was applied.
	if len(repo.ledger) != 1 {
		t.Fatalf("expected 1 ledger event, got %d", len(repo.ledger))
	}
}

func notifyServiceForTest(repo *fakeTxnRepo, sinkURL string, maxAttempts int32) *PaymentService {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewPaymentService(
		repo,
		&fakeWebhookRepo{},
		&fakeLedgerRepo{repo: repo},
		provider.NewRegistry(&fakeProvider{}),
		pricing.NewCalculator(logger),
		config.PaymentsConfig{
			DefaultCurrency:     "GBP",
			AuditSinkURL:        sinkURL,
			NotifyMaxAttempts:   maxAttempts,
			NotifyRetryInterval: time.Second,
			NotifyHTTPTimeout:   time.Second,
			ReconcileStaleAfter: time.Minute,
			JobBatchSize:        100,
		},
		logger,
	)
}

func settledTransaction(t *testing.T, repo *fakeTxnRepo, svc *PaymentService) *entity.Transaction {
	t.Helper()
	repo.addAttendance(1, 7, 100, "£10")
	item, err := svc.Checkout(context.Background(), &types.CheckoutRequest{UserID: 7})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.Capture(context.Background(), &types.CaptureRequest{UserID: 7, ProviderChargeID: *item.CardIntentID}); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	// Make the notification due now.
	due := time.Now().UTC().Add(-time.Second)
	repo.txns[item.ID].NotifyNextAt = &due
	return item
}

func TestRunNotifyBatchDeliversToAuditSink(t *testing.T) {
	repo := newFakeTxnRepo()
	var gotTransactionID string
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTransactionID = r.Header.Get("X-Transaction-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	svc := notifyServiceForTest(repo, sink.URL, 3)
	item := settledTransaction(t, repo, svc)

	if err := svc.RunNotifyBatch(context.Background()); err != nil {
		t.Fatalf("run notify batch failed: %v", err)
	}

	updated, _ := repo.FindByID(context.Background(), item.ID)
	if updated.NotifyStatus != entity.NotifySuccess {
		t.Fatalf("expected notify success, got %d", updated.NotifyStatus)
	}
	if gotTransactionID == "" {
		t.Fatal("expected audit sink request to carry the transaction id")
	}
}

func TestRunNotifyBatchRetriesThenFails(t *testing.T) {
	repo := newFakeTxnRepo()
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sink.Close()

	svc := notifyServiceForTest(repo, sink.URL, 2)
	item := settledTransaction(t, repo, svc)

	if err := svc.RunNotifyBatch(context.Background()); err == nil {
		t.Fatal("expected first notify batch to report the delivery error")
	}

	updated, _ := repo.FindByID(context.Background(), item.ID)
	if updated.NotifyStatus != entity.NotifyPending {
		t.Fatalf("expected notify to stay pending for retry, got %d", updated.NotifyStatus)
	}
	if updated.NotifyAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", updated.NotifyAttempts)
	}
	if updated.NotifyNextAt == nil {
		t.Fatal("expected a retry time to be scheduled")
	}

	// Exhaust the attempt cap.
	due := time.Now().UTC().Add(-time.Second)
	repo.txns[item.ID].NotifyNextAt = &due
	if err := svc.RunNotifyBatch(context.Background()); err == nil {
		t.Fatal("expected second notify batch to report the delivery error")
	}

	updated, _ = repo.FindByID(context.Background(), item.ID)
	if updated.NotifyStatus != entity.NotifyFailed {
		t.Fatalf("expected notify failed after attempt cap, got %d", updated.NotifyStatus)
	}
	if updated.NotifyNextAt != nil {
		t.Fatal("expected no further retry to be scheduled")
	}
}

func TestRunNotifyBatchWithoutSinkMarksFailed(t *testing.T) {
	repo := newFakeTxnRepo()
	svc := notifyServiceForTest(repo, "", 3)
	item := settledTransaction(t, repo, svc)

	if err := svc.RunNotifyBatch(context.Background()); err != nil {
		t.Fatalf("run notify batch failed: %v", err)
	}

	updated, _ := repo.FindByID(context.Background(), item.ID)
	if updated.NotifyStatus != entity.NotifyFailed {
		t.Fatalf("expected notify failed without a sink, got %d", updated.NotifyStatus)
	}
}
