package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const UserIDHeader = "X-User-ID"

type CheckoutRequest struct {
	UserID   uint64 `json:"-"`
	Provider string `json:"provider"`
	Currency string `json:"currency"`

	// Amount is informational only; the charge amount is always derived
	// server-side from the user's unpaid attendances.
	Amount int64 `json:"amount"`
}

func NewCheckoutRequestFromContext(ctx echo.Context) (*CheckoutRequest, error) {
	var body CheckoutRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	body.UserID = userID
	body.Provider = strings.ToLower(strings.TrimSpace(body.Provider))
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))

	return &body, nil
}

func (r *CheckoutRequest) Validate() error {
	if r.UserID == 0 {
		return errors.New("user id is required")
	}
	if _, err := ParseProvider(r.Provider); err != nil {
		return err
	}
	if r.Currency != "" && len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	return nil
}

type CaptureRequest struct {
	UserID           uint64 `json:"-"`
	ProviderChargeID string `json:"provider_charge_id"`
}

func NewCaptureRequestFromContext(ctx echo.Context) (*CaptureRequest, error) {
	var body CaptureRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	body.UserID = userID
	body.ProviderChargeID = strings.TrimSpace(body.ProviderChargeID)

	return &body, nil
}

func (r *CaptureRequest) Validate() error {
	if r.UserID == 0 {
		return errors.New("user id is required")
	}
	if r.ProviderChargeID == "" {
		return errors.New("provider_charge_id is required")
	}
	return nil
}

type RefundRequest struct {
	TransactionID    uint64 `json:"transaction_id"`
	ProviderChargeID string `json:"provider_charge_id"`
	Reason           string `json:"reason"`
}

func NewRefundRequestFromContext(ctx echo.Context) (*RefundRequest, error) {
	var body RefundRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.ProviderChargeID = strings.TrimSpace(body.ProviderChargeID)
	body.Reason = strings.TrimSpace(body.Reason)
	return &body, nil
}

func (r *RefundRequest) Validate() error {
	if r.TransactionID == 0 && r.ProviderChargeID == "" {
		return errors.New("transaction_id or provider_charge_id is required")
	}
	if r.Reason == "" {
		return errors.New("reason is required")
	}
	return nil
}

type WebhookRequest struct {
	Provider  string
	Signature string
	Payload   []byte
}

func NewWebhookRequestFromContext(ctx echo.Context) (*WebhookRequest, error) {
	providerName := strings.ToLower(strings.TrimSpace(ctx.Param("provider")))

	signature := strings.TrimSpace(ctx.Request().Header.Get("X-Provider-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("Card-Signature"))
	}

	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &WebhookRequest{
		Provider:  providerName,
		Signature: signature,
		Payload:   payload,
	}, nil
}

func (r *WebhookRequest) Validate() error {
	if _, err := ParseProvider(r.Provider); err != nil {
		return err
	}
	if r.Signature == "" {
		return errors.New("provider signature is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type GetTransactionRequest struct {
	ID     uint64
	UserID uint64
}

func NewGetTransactionRequestFromContext(ctx echo.Context) (*GetTransactionRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return &GetTransactionRequest{ID: id, UserID: userID}, nil
}

func (r *GetTransactionRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid transaction id")
	}
	return nil
}

// ParseProvider maps a request-supplied provider name to its code. An empty
// name defaults to the card provider.
func ParseProvider(raw string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "card", "1":
		return ProviderTypeCard, nil
	case "wallet", "2":
		return ProviderTypeWallet, nil
	default:
		return ProviderTypeUnspecified, errors.New("provider must be card or wallet")
	}
}

func userIDFromContext(ctx echo.Context) (uint64, error) {
	raw := strings.TrimSpace(ctx.Request().Header.Get(UserIDHeader))
	if raw == "" {
		return 0, errors.New("x-user-id header is required")
	}
	return strconv.ParseUint(raw, 10, 64)
}
