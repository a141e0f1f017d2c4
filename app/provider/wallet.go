package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eventick/ms-go-ticketing/app/types"
)

type WalletConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	HTTPTimeout   time.Duration
}

// WalletProvider talks to the e-wallet provider's order API. Orders follow a
// two-phase create-then-capture flow. Every outbound call performs a fresh
// client-credential token exchange; the adapter keeps no token cache, so an
// expired token can never be reused across calls.
type WalletProvider struct {
	cfg    WalletConfig
	client *http.Client
}

func NewWalletProvider(cfg WalletConfig) *WalletProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &WalletProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *WalletProvider) Code() int32 {
	return int32(types.ProviderTypeWallet)
}

func (p *WalletProvider) Name() string {
	return types.ProviderTypeWallet.String()
}

func (p *WalletProvider) Configured() bool {
	return p.cfg.BaseURL != "" &&
		strings.TrimSpace(p.cfg.ClientID) != "" &&
		strings.TrimSpace(p.cfg.ClientSecret) != "" &&
		strings.TrimSpace(p.cfg.WebhookSecret) != ""
}

func (p *WalletProvider) CreateCharge(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	request := map[string]interface{}{
		"reference": input.Reference,
		"amount":    input.AmountCents,
		"currency":  strings.ToUpper(input.Currency),
		"metadata":  input.Metadata,
	}

	body, err := p.postJSON(ctx, "/v2/orders", request)
	if err != nil {
		return nil, err
	}

	var payload struct {
		OrderID       string `json:"order_id"`
		CheckoutToken string `json:"checkout_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		return nil, errors.New("wallet provider returned no order id")
	}

	return &CreateOutput{
		ChargeID:     strings.TrimSpace(payload.OrderID),
		ClientSecret: strings.TrimSpace(payload.CheckoutToken),
	}, nil
}

func (p *WalletProvider) CaptureCharge(ctx context.Context, chargeID string) (*CaptureResult, error) {
	body, err := p.postJSON(ctx, "/v2/orders/"+url.PathEscape(chargeID)+"/capture", map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	switch strings.ToLower(payload.Status) {
	case "captured", "paid":
		return &CaptureResult{Settled: true}, nil
	default:
		reason := strings.TrimSpace(payload.Reason)
		if reason == "" {
			reason = "capture returned status " + payload.Status
		}
		return &CaptureResult{Settled: false, FailureReason: reason}, nil
	}
}

func (p *WalletProvider) RefundCharge(ctx context.Context, chargeID, reason string) (*RefundResult, error) {
	body, err := p.postJSON(ctx, "/v2/orders/"+url.PathEscape(chargeID)+"/refund", map[string]interface{}{
		"reason": strings.TrimSpace(reason),
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		RefundID string `json:"refund_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.RefundID) == "" {
		return nil, errors.New("wallet provider returned no refund id")
	}

	return &RefundResult{RefundID: strings.TrimSpace(payload.RefundID)}, nil
}

func (p *WalletProvider) GetChargeStatus(ctx context.Context, chargeID string) (types.TransactionStatus, error) {
	body, err := p.getJSON(ctx, "/v2/orders/"+url.PathEscape(chargeID))
	if err != nil {
		return 0, err
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}

	switch strings.ToLower(payload.Status) {
	case "captured", "paid":
		return types.TransactionStatusSucceeded, nil
	case "failed", "declined", "expired":
		return types.TransactionStatusFailed, nil
	case "refunded":
		return types.TransactionStatusRefunded, nil
	default:
		return 0, nil
	}
}

func (p *WalletProvider) VerifyAndParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, ErrMisconfigured
	}
	if !verifyWalletSignature(payload, signature, p.cfg.WebhookSecret) {
		return nil, ErrInvalidSignature
	}

	var event struct {
		ID    string `json:"id"`
		Event string `json:"event"`
		Data  struct {
			OrderID string `json:"order_id"`
			Amount  int64  `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &WebhookEvent{
		EventType: event.Event,
		ChargeID:  strings.TrimSpace(event.Data.OrderID),
	}
	if id := strings.TrimSpace(event.ID); id != "" {
		result.ProviderEventID = &id
	}

	switch event.Event {
	case "order.paid":
		result.NewStatus = types.TransactionStatusSucceeded
	case "order.payment_failed":
		result.NewStatus = types.TransactionStatusFailed
	case "order.refunded":
		result.NewStatus = types.TransactionStatusRefunded
	}

	return result, nil
}

// authenticate performs the client-credential exchange and returns a bearer
// token for one call.
func (p *WalletProvider) authenticate(ctx context.Context) (string, error) {
	if !p.Configured() {
		return "", ErrMisconfigured
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     p.cfg.ClientID,
		"client_secret": p.cfg.ClientSecret,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: token exchange status=%d", ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: token exchange status=%d", ErrUnavailable, resp.StatusCode)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return "", err
	}
	if strings.TrimSpace(reply.AccessToken) == "" {
		return "", fmt.Errorf("%w: token exchange returned no access token", ErrAuthFailed)
	}

	tokenType := strings.TrimSpace(reply.TokenType)
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + strings.TrimSpace(reply.AccessToken), nil
}

func (p *WalletProvider) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return p.doAuthenticated(ctx, http.MethodPost, path, body)
}

func (p *WalletProvider) getJSON(ctx context.Context, path string) ([]byte, error) {
	return p.doAuthenticated(ctx, http.MethodGet, path, nil)
}

func (p *WalletProvider) doAuthenticated(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := p.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := classifyStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// verifyWalletSignature checks a hex HMAC-SHA256 of the raw payload.
func verifyWalletSignature(payload []byte, signature, webhookSecret string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}

	candidate, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(payload)
	return hmac.Equal(candidate, mac.Sum(nil))
}
