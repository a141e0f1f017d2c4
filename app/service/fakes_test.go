package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/pricing"
	"github.com/eventick/ms-go-ticketing/app/provider"
	"github.com/eventick/ms-go-ticketing/app/repository"
	"github.com/eventick/ms-go-ticketing/app/types"
	"github.com/eventick/ms-go-ticketing/config"
)

// fakeTxnRepo mirrors the SQL repository's transactional semantics: Transition
// either applies the transaction, attendance and ledger writes together or,
// when failNext is set, applies none of them.
type fakeTxnRepo struct {
	txns        map[uint64]*entity.Transaction
	attendances map[uint64]*entity.Attendance
	ledger      []*entity.LedgerEvent
	nextID      uint64

	failNext error
}

func newFakeTxnRepo() *fakeTxnRepo {
	return &fakeTxnRepo{
		txns:        map[uint64]*entity.Transaction{},
		attendances: map[uint64]*entity.Attendance{},
		nextID:      1,
	}
}

func (r *fakeTxnRepo) addAttendance(id, userID, eventID uint64, priceText string) {
	r.attendances[id] = &entity.Attendance{
		ID:        id,
		UserID:    userID,
		EventID:   eventID,
		PriceText: priceText,
		Status:    int32(types.AttendanceActive),
	}
}

func (r *fakeTxnRepo) CreateForCheckout(_ context.Context, userID uint64, providerCode int32, currency string, totalFn func([]*entity.Attendance) int64) (*entity.Transaction, error) {
	items := make([]*entity.Attendance, 0)
	for _, att := range r.attendances {
		if att.UserID == userID && att.Status == int32(types.AttendanceActive) && att.PaymentStatus == int32(types.AttendanceUnpaid) {
			copyItem := *att
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if len(items) == 0 {
		return nil, repository.ErrNothingToCharge
	}

	total := totalFn(items)
	if total <= 0 {
		return nil, repository.ErrNothingToCharge
	}

	ids := make([]uint64, 0, len(items))
	for _, att := range items {
		ids = append(ids, att.ID)
	}

	now := time.Now().UTC()
	id := r.nextID
	r.nextID++
	item := &entity.Transaction{
		ID:            id,
		UserID:        userID,
		AmountCents:   total,
		Currency:      currency,
		Status:        int32(types.TransactionStatusPending),
		Provider:      providerCode,
		AttendanceIDs: ids,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	copyItem := *item
	r.txns[id] = &copyItem
	r.ledger = append(r.ledger, &entity.LedgerEvent{
		TransactionID: id,
		EventType:     "transaction_created",
		NewStatus:     item.Status,
		CreatedAt:     now,
	})
	return item, nil
}

func (r *fakeTxnRepo) AttachProviderCharge(_ context.Context, transactionID uint64, providerCode int32, chargeID, clientSecret string, now time.Time) error {
	item, ok := r.txns[transactionID]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	if providerCode == int32(types.ProviderTypeWallet) {
		item.WalletOrderID = &chargeID
	} else {
		item.CardIntentID = &chargeID
	}
	item.ClientSecret = &clientSecret
	item.UpdatedAt = now
	return nil
}

func (r *fakeTxnRepo) FindByID(_ context.Context, id uint64) (*entity.Transaction, error) {
	item, ok := r.txns[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeTxnRepo) FindByProviderChargeID(_ context.Context, providerCode int32, chargeID string) (*entity.Transaction, error) {
	for _, item := range r.txns {
		if item.Provider != providerCode {
			continue
		}
		var id *string
		if providerCode == int32(types.ProviderTypeWallet) {
			id = item.WalletOrderID
		} else {
			id = item.CardIntentID
		}
		if id != nil && *id == chargeID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeTxnRepo) Transition(_ context.Context, in repository.TransitionInput) (*repository.TransitionResult, error) {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return nil, err
	}

	item, ok := r.txns[in.TransactionID]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}

	current := types.TransactionStatus(item.Status)
	if types.StatusReached(current, in.Target) {
		copyItem := *item
		return &repository.TransitionResult{Applied: false, Transaction: &copyItem}, nil
	}
	if !types.CanTransition(current, in.Target) {
		return nil, repository.ErrInvalidTransition
	}

	oldStatus := item.Status
	item.Status = int32(in.Target)
	item.UpdatedAt = in.Now
	if in.Target == types.TransactionStatusRefunded {
		refundedAt := in.Now
		item.RefundedAt = &refundedAt
		item.RefundID = in.RefundID
		item.RefundReason = in.RefundReason
	}
	item.NotifyStatus = entity.NotifyPending
	item.NotifyAttempts = 0
	notifyAt := in.Now
	item.NotifyNextAt = &notifyAt
	item.NotifyLastErr = nil

	switch in.Target {
	case types.TransactionStatusSucceeded:
		for _, id := range item.AttendanceIDs {
			att := r.attendances[id]
			if att == nil {
				continue
			}
			att.PaymentStatus = int32(types.AttendancePaid)
			att.PaymentIntentID = item.ProviderChargeID()
			paidAt := in.Now
			att.PaymentDate = &paidAt
		}
	case types.TransactionStatusRefunded:
		for _, id := range item.AttendanceIDs {
			att := r.attendances[id]
			if att == nil {
				continue
			}
			att.PaymentStatus = int32(types.AttendanceRefunded)
		}
	}

	r.ledger = append(r.ledger, &entity.LedgerEvent{
		TransactionID:   item.ID,
		EventType:       in.EventType,
		OldStatus:       &oldStatus,
		NewStatus:       item.Status,
		ProviderEventID: in.ProviderEventID,
		PayloadJSON:     in.PayloadJSON,
		CreatedAt:       in.Now,
	})

	copyItem := *item
	return &repository.TransitionResult{Applied: true, Transaction: &copyItem}, nil
}

func (r *fakeTxnRepo) ListStalePending(_ context.Context, before time.Time, limit int32) ([]*entity.Transaction, error) {
	items := make([]*entity.Transaction, 0)
	for _, item := range r.txns {
		if item.Status == int32(types.TransactionStatusPending) && item.ProviderChargeID() != nil && !item.UpdatedAt.After(before) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return limitTxns(items, limit), nil
}

func (r *fakeTxnRepo) ListDueNotify(_ context.Context, now time.Time, limit int32) ([]*entity.Transaction, error) {
	items := make([]*entity.Transaction, 0)
	for _, item := range r.txns {
		if item.NotifyStatus == entity.NotifyPending && item.NotifyNextAt != nil && !item.NotifyNextAt.After(now) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return limitTxns(items, limit), nil
}

func (r *fakeTxnRepo) UpdateNotifyState(_ context.Context, item *entity.Transaction) error {
	stored, ok := r.txns[item.ID]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	stored.NotifyStatus = item.NotifyStatus
	stored.NotifyAttempts = item.NotifyAttempts
	stored.NotifyNextAt = item.NotifyNextAt
	stored.NotifyLastErr = item.NotifyLastErr
	stored.UpdatedAt = item.UpdatedAt
	return nil
}

func limitTxns(items []*entity.Transaction, limit int32) []*entity.Transaction {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit <= 0 || int(limit) >= len(items) {
		return items
	}
	return items[:limit]
}

// fakeLedgerRepo reads the audit trail the fakeTxnRepo writes.
type fakeLedgerRepo struct {
	repo *fakeTxnRepo
}

func (r *fakeLedgerRepo) ListByTransactionID(_ context.Context, transactionID uint64) ([]*entity.LedgerEvent, error) {
	items := make([]*entity.LedgerEvent, 0)
	for _, event := range r.repo.ledger {
		if event.TransactionID == transactionID {
			copyItem := *event
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

type fakeWebhookRepo struct {
	records []*entity.WebhookRecord
}

func (r *fakeWebhookRepo) Create(_ context.Context, record *entity.WebhookRecord) error {
	copyItem := *record
	r.records = append(r.records, &copyItem)
	return nil
}

type fakeProvider struct {
	code int32

	createOutput *provider.CreateOutput
	createErr    error

	captureResult *provider.CaptureResult
	captureErr    error

	refundResult *provider.RefundResult
	refundErr    error

	statusResult types.TransactionStatus
	statusErr    error

	webhookEvent *provider.WebhookEvent
	webhookErr   error
}

func (p *fakeProvider) Code() int32 {
	if p.code != 0 {
		return p.code
	}
	return int32(types.ProviderTypeCard)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Configured() bool { return true }

func (p *fakeProvider) CreateCharge(context.Context, *provider.CreateInput) (*provider.CreateOutput, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.createOutput != nil {
		return p.createOutput, nil
	}
	return &provider.CreateOutput{ChargeID: "pi_test_123", ClientSecret: "pi_test_123_secret"}, nil
}

func (p *fakeProvider) CaptureCharge(context.Context, string) (*provider.CaptureResult, error) {
	if p.captureErr != nil {
		return nil, p.captureErr
	}
	if p.captureResult != nil {
		return p.captureResult, nil
	}
	return &provider.CaptureResult{Settled: true}, nil
}

func (p *fakeProvider) RefundCharge(context.Context, string, string) (*provider.RefundResult, error) {
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	if p.refundResult != nil {
		return p.refundResult, nil
	}
	return &provider.RefundResult{RefundID: "re_test_123"}, nil
}

func (p *fakeProvider) GetChargeStatus(context.Context, string) (types.TransactionStatus, error) {
	if p.statusErr != nil {
		return types.TransactionStatusUnspecified, p.statusErr
	}
	return p.statusResult, nil
}

func (p *fakeProvider) VerifyAndParseWebhook(context.Context, []byte, string) (*provider.WebhookEvent, error) {
	if p.webhookErr != nil {
		return nil, p.webhookErr
	}
	if p.webhookEvent != nil {
		return p.webhookEvent, nil
	}
	return nil, errors.New("no webhook event configured")
}

func newServiceForTest(repo *fakeTxnRepo, webhookRepo *fakeWebhookRepo, providers ...provider.Provider) *PaymentService {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewPaymentService(
		repo,
		webhookRepo,
		&fakeLedgerRepo{repo: repo},
		provider.NewRegistry(providers...),
		pricing.NewCalculator(logger),
		config.PaymentsConfig{
			DefaultCurrency:     "GBP",
			NotifyMaxAttempts:   3,
			NotifyRetryInterval: time.Second,
			NotifyHTTPTimeout:   time.Second,
			ReconcileStaleAfter: time.Minute,
			JobBatchSize:        100,
		},
		logger,
	)
}
