package provider

import (
	"context"

	"github.com/eventick/ms-go-ticketing/app/types"
)

type CreateInput struct {
	Reference   string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

type CreateOutput struct {
	// ChargeID is the provider-side identifier for this charge: a card
	// payment intent id or a wallet order id.
	ChargeID string

	// ClientSecret is the token the client SDK needs to complete payment.
	ClientSecret string
}

type CaptureResult struct {
	Settled bool

	// FailureReason is set when the provider declined the capture.
	FailureReason string
}

type RefundResult struct {
	RefundID string
}

// WebhookEvent is the normalized form of an inbound provider callback.
// NewStatus is zero for event types that require no state change.
type WebhookEvent struct {
	ProviderEventID *string
	ChargeID        string
	EventType       string
	NewStatus       types.TransactionStatus
}

type Provider interface {
	Code() int32
	Name() string

	// Configured reports whether the adapter has the credentials it needs.
	// Unconfigured adapters fail each call with ErrMisconfigured.
	Configured() bool

	CreateCharge(ctx context.Context, input *CreateInput) (*CreateOutput, error)
	CaptureCharge(ctx context.Context, chargeID string) (*CaptureResult, error)
	RefundCharge(ctx context.Context, chargeID, reason string) (*RefundResult, error)
	GetChargeStatus(ctx context.Context, chargeID string) (types.TransactionStatus, error)
	VerifyAndParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
