package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body, hex
// encoded, computed with the shared webhook secret.
const SignatureHeader = "X-Gateway-Signature"

type CardConfig struct {
	APIURL        string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// CardGateway drives a payment-intent style card provider. CreateRemoteOrder
// opens an unconfirmed intent; Confirm drives it with the shopper's payment
// method reference. A `requires_action` status pauses the flow and hands a
// client secret back to the frontend for step-up authentication, after which
// the same intent id is re-checked with an empty method reference.
type CardGateway struct {
	cfg    CardConfig
	client *http.Client
}

func NewCardGateway(cfg CardConfig) *CardGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &CardGateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (g *CardGateway) Method() models.PaymentMethod { return models.PaymentMethodCard }
func (g *CardGateway) SettlementTiming() Timing     { return TimingDeferred }

type paymentIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Metadata     struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

// CreateRemoteOrder opens a payment intent for the order amount, in minor
// units, without confirming it.
func (g *CardGateway) CreateRemoteOrder(ctx context.Context, ord RemoteOrder) (*CreateResult, error) {
	payload := map[string]interface{}{
		"amount":      ord.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"currency":    ord.Currency,
		"description": fmt.Sprintf("Order #%s", ord.OrderNumber),
		"metadata": map[string]string{
			"order_id":     strconv.FormatUint(uint64(ord.OrderID), 10),
			"order_number": ord.OrderNumber,
		},
	}

	var intent paymentIntent
	raw, err := g.do(ctx, http.MethodPost, "/v1/payment_intents", payload, &intent)
	if err != nil {
		return nil, err
	}
	return &CreateResult{CorrelationID: intent.ID, Raw: raw}, nil
}

// Confirm drives the intent with a payment method reference. An empty
// methodRef re-reads the intent instead, which is how the flow resumes after
// the frontend finished step-up authentication.
func (g *CardGateway) Confirm(ctx context.Context, correlationID, methodRef string) (*ConfirmResult, error) {
	var (
		intent paymentIntent
		raw    string
		err    error
	)
	if methodRef == "" {
		raw, err = g.do(ctx, http.MethodGet, "/v1/payment_intents/"+correlationID, nil, &intent)
	} else {
		payload := map[string]interface{}{"payment_method": methodRef}
		raw, err = g.do(ctx, http.MethodPost, "/v1/payment_intents/"+correlationID+"/confirm", payload, &intent)
	}
	if err != nil {
		return nil, err
	}

	res := &ConfirmResult{CorrelationID: intent.ID, Raw: raw}
	switch intent.Status {
	case "succeeded":
		res.Status = StatusSucceeded
	case "requires_action", "requires_confirmation":
		res.Status = StatusRequiresAction
		res.RequiresAction = true
		res.Continuation = intent.ClientSecret
	case "processing":
		res.Status = StatusProcessing
	default:
		res.Status = StatusFailed
	}
	return res, nil
}

// Status normalizes the intent state: still payable intents report StatusOpen
// so the checkout dedupe window can reuse them.
func (g *CardGateway) Status(ctx context.Context, correlationID string) (string, error) {
	var intent paymentIntent
	if _, err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+correlationID, nil, &intent); err != nil {
		return "", err
	}
	switch intent.Status {
	case "succeeded":
		return StatusSucceeded, nil
	case "processing":
		return StatusProcessing, nil
	case "requires_payment_method", "requires_confirmation", "requires_action":
		return StatusOpen, nil
	default:
		return StatusFailed, nil
	}
}

func (g *CardGateway) Capture(ctx context.Context, correlationID string) (*CaptureResult, error) {
	var intent paymentIntent
	raw, err := g.do(ctx, http.MethodPost, "/v1/payment_intents/"+correlationID+"/capture", nil, &intent)
	if err != nil {
		return nil, err
	}
	if intent.Status != "succeeded" {
		return nil, fmt.Errorf("%w: capture ended with status %s", ErrGateway, intent.Status)
	}
	return &CaptureResult{
		Status:    StatusSucceeded,
		CaptureID: intent.ID,
		Amount:    decimal.NewFromInt(intent.Amount).Div(decimal.NewFromInt(100)),
		Raw:       raw,
	}, nil
}

func (g *CardGateway) Refund(ctx context.Context, captureID string, amount decimal.Decimal, reason string) (string, error) {
	payload := map[string]interface{}{
		"payment_intent": captureID,
		"amount":         amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"reason":         reason,
	}
	var refund struct {
		ID string `json:"id"`
	}
	if _, err := g.do(ctx, http.MethodPost, "/v1/refunds", payload, &refund); err != nil {
		return "", err
	}
	return refund.ID, nil
}

func (g *CardGateway) VerifyWebhookSignature(headers http.Header, body []byte) bool {
	provided := headers.Get(SignatureHeader)
	if provided == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

func (g *CardGateway) ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event struct {
		Type string `json:"type"`
		Data struct {
			Object paymentIntent `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("parse card webhook: %w", err)
	}

	out := &WebhookEvent{
		CorrelationID: event.Data.Object.ID,
		CaptureID:     event.Data.Object.ID,
	}
	if id, err := strconv.ParseUint(event.Data.Object.Metadata.OrderID, 10, 32); err == nil {
		out.OrderID = uint(id)
	}

	switch event.Type {
	case "payment_intent.succeeded":
		out.Kind = WebhookCaptureCompleted
	case "payment_intent.payment_failed":
		out.Kind = WebhookCaptureFailed
	default:
		out.Kind = WebhookIgnored
	}
	return out, nil
}

// do performs an authenticated JSON round-trip against the card provider.
func (g *CardGateway) do(ctx context.Context, method, path string, payload interface{}, out interface{}) (string, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.APIURL+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: card API %d: %s", ErrGateway, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return "", fmt.Errorf("%w: bad card API response: %v", ErrGateway, err)
		}
	}
	return string(raw), nil
}
