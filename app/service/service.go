package service

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/eventick/ms-go-ticketing/app/entity"
	"github.com/eventick/ms-go-ticketing/app/pricing"
	"github.com/eventick/ms-go-ticketing/app/provider"
	"github.com/eventick/ms-go-ticketing/app/repository"
	"github.com/eventick/ms-go-ticketing/config"
)

const defaultBatchSize = int32(100)

type transactionRepository interface {
	CreateForCheckout(ctx context.Context, userID uint64, providerCode int32, currency string, totalFn func([]*entity.Attendance) int64) (*entity.Transaction, error)
	AttachProviderCharge(ctx context.Context, transactionID uint64, providerCode int32, chargeID, clientSecret string, now time.Time) error
	FindByID(ctx context.Context, id uint64) (*entity.Transaction, error)
	FindByProviderChargeID(ctx context.Context, providerCode int32, chargeID string) (*entity.Transaction, error)
	Transition(ctx context.Context, in repository.TransitionInput) (*repository.TransitionResult, error)
	ListStalePending(ctx context.Context, before time.Time, limit int32) ([]*entity.Transaction, error)
	ListDueNotify(ctx context.Context, now time.Time, limit int32) ([]*entity.Transaction, error)
	UpdateNotifyState(ctx context.Context, item *entity.Transaction) error
}

type webhookRecordRepository interface {
	Create(ctx context.Context, record *entity.WebhookRecord) error
}

type ledgerEventRepository interface {
	ListByTransactionID(ctx context.Context, transactionID uint64) ([]*entity.LedgerEvent, error)
}

// PaymentService implements checkout, capture, refund, webhook ingestion and
// the background jobs. All status changes funnel through applyTransition so
// the ledger guard is enforced on every path.
type PaymentService struct {
	txnRepo     transactionRepository
	webhookRepo webhookRecordRepository
	ledgerRepo  ledgerEventRepository
	providerReg *provider.Registry
	calculator  *pricing.Calculator
	paymentsCfg config.PaymentsConfig
	logger      logrus.FieldLogger
	notifyHTTP  *http.Client
}

func NewPaymentService(
	txnRepo transactionRepository,
	webhookRepo webhookRecordRepository,
	ledgerRepo ledgerEventRepository,
	providerReg *provider.Registry,
	calculator *pricing.Calculator,
	paymentsCfg config.PaymentsConfig,
	logger logrus.FieldLogger,
) *PaymentService {
	timeout := paymentsCfg.NotifyHTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PaymentService{
		txnRepo:     txnRepo,
		webhookRepo: webhookRepo,
		ledgerRepo:  ledgerRepo,
		providerReg: providerReg,
		calculator:  calculator,
		paymentsCfg: paymentsCfg,
		logger:      logger,
		notifyHTTP:  &http.Client{Timeout: timeout},
	}
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

// truncate caps value at max bytes without splitting a multi-byte rune, so
// the result stays valid UTF-8 for the VARCHAR columns it lands in.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
