package provider

import (
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
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventick/ms-go-ticketing/app/types"
)

const defaultCardAPIBaseURL = "https://api.cardpay.example.com"

type CardConfig struct {
	SecretKey                 string
	WebhookSecret             string
	APIBaseURL                string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

// CardProvider talks to the card payment provider's intent API. Calls are
// authenticated with a static bearer secret key; webhooks carry a timestamped
// HMAC-SHA256 signature.
type CardProvider struct {
	cfg    CardConfig
	client *http.Client
}

func NewCardProvider(cfg CardConfig) *CardProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaultCardAPIBaseURL
	}

	return &CardProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *CardProvider) Code() int32 {
	return int32(types.ProviderTypeCard)
}

func (p *CardProvider) Name() string {
	return types.ProviderTypeCard.String()
}

func (p *CardProvider) Configured() bool {
	return strings.TrimSpace(p.cfg.SecretKey) != "" && strings.TrimSpace(p.cfg.WebhookSecret) != ""
}

func (p *CardProvider) CreateCharge(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if !p.Configured() {
		return nil, ErrMisconfigured
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(input.AmountCents, 10))
	values.Set("currency", strings.ToLower(input.Currency))
	values.Set("capture_method", "automatic")
	for k, v := range input.Metadata {
		values.Set("metadata["+k+"]", v)
	}
	values.Set("metadata[reference]", input.Reference)

	body, err := p.postForm(ctx, "/v1/payment_intents", values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.ID) == "" {
		return nil, errors.New("card provider returned no intent id")
	}

	return &CreateOutput{
		ChargeID:     strings.TrimSpace(payload.ID),
		ClientSecret: strings.TrimSpace(payload.ClientSecret),
	}, nil
}

func (p *CardProvider) CaptureCharge(ctx context.Context, chargeID string) (*CaptureResult, error) {
	if !p.Configured() {
		return nil, ErrMisconfigured
	}

	body, err := p.postForm(ctx, "/v1/payment_intents/"+url.PathEscape(chargeID)+"/capture", url.Values{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Status           string `json:"status"`
		LastPaymentError struct {
			Message string `json:"message"`
		} `json:"last_payment_error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	switch payload.Status {
	case "succeeded":
		return &CaptureResult{Settled: true}, nil
	default:
		reason := strings.TrimSpace(payload.LastPaymentError.Message)
		if reason == "" {
			reason = "capture returned status " + payload.Status
		}
		return &CaptureResult{Settled: false, FailureReason: reason}, nil
	}
}

func (p *CardProvider) RefundCharge(ctx context.Context, chargeID, reason string) (*RefundResult, error) {
	if !p.Configured() {
		return nil, ErrMisconfigured
	}

	values := url.Values{}
	values.Set("payment_intent", chargeID)
	if strings.TrimSpace(reason) != "" {
		values.Set("metadata[reason]", strings.TrimSpace(reason))
	}

	body, err := p.postForm(ctx, "/v1/refunds", values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.ID) == "" {
		return nil, errors.New("card provider returned no refund id")
	}

	return &RefundResult{RefundID: strings.TrimSpace(payload.ID)}, nil
}

func (p *CardProvider) GetChargeStatus(ctx context.Context, chargeID string) (types.TransactionStatus, error) {
	if !p.Configured() {
		return 0, ErrMisconfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBaseURL+"/v1/payment_intents/"+url.PathEscape(chargeID), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)

	body, err := p.do(req)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}

	switch payload.Status {
	case "succeeded":
		return types.TransactionStatusSucceeded, nil
	case "canceled":
		return types.TransactionStatusFailed, nil
	default:
		return 0, nil
	}
}

func (p *CardProvider) VerifyAndParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, ErrMisconfigured
	}
	if !verifyTimestampedSignature(payload, signature, p.cfg.WebhookSecret, p.cfg.SignatureToleranceSeconds) {
		return nil, ErrInvalidSignature
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID            string `json:"id"`
				PaymentIntent string `json:"payment_intent"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &WebhookEvent{EventType: event.Type}
	if id := strings.TrimSpace(event.ID); id != "" {
		result.ProviderEventID = &id
	}

	// Refund events carry a charge object referencing the intent; the other
	// events carry the intent itself.
	result.ChargeID = strings.TrimSpace(event.Data.Object.PaymentIntent)
	if result.ChargeID == "" {
		result.ChargeID = strings.TrimSpace(event.Data.Object.ID)
	}

	switch event.Type {
	case "payment_intent.succeeded":
		result.NewStatus = types.TransactionStatusSucceeded
	case "payment_intent.payment_failed":
		result.NewStatus = types.TransactionStatusFailed
	case "charge.refunded":
		result.NewStatus = types.TransactionStatusRefunded
	}

	return result, nil
}

func (p *CardProvider) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBaseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// Mutating calls carry an idempotency key so a retried request cannot
	// open a second charge provider-side.
	req.Header.Set("Idempotency-Key", uuid.NewString())

	return p.do(req)
}

func (p *CardProvider) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// classifyStatus maps provider HTTP responses onto the adapter error
// taxonomy so callers never have to inspect raw status codes.
func classifyStatus(statusCode int, body []byte) error {
	switch {
	case statusCode < 400:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status=%d", ErrAuthFailed, statusCode)
	case statusCode < 500:
		return fmt.Errorf("%w: status=%d body=%s", ErrRejected, statusCode, truncateBody(body))
	default:
		return fmt.Errorf("%w: status=%d", ErrUnavailable, statusCode)
	}
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max])
}

// verifyTimestampedSignature checks a "t=<unix>,v1=<hex hmac>" header against
// HMAC-SHA256('<t>.<payload>', secret), rejecting stale timestamps.
func verifyTimestampedSignature(payload []byte, signatureHeader, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}
