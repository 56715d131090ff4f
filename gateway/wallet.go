package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

type WalletConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	StoreName    string
	ReturnURL    string
	CancelURL    string
	Currency     string
	Timeout      time.Duration
}

// WalletGateway drives a redirect-based wallet provider: create an order at
// the provider, send the shopper to the approval URL, then capture once they
// return. Access tokens come from a client-credentials exchange and are
// cached until shortly before expiry.
type WalletGateway struct {
	cfg    WalletConfig
	client *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewWalletGateway(cfg WalletConfig) *WalletGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &WalletGateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (g *WalletGateway) Method() models.PaymentMethod { return models.PaymentMethodWallet }
func (g *WalletGateway) SettlementTiming() Timing     { return TimingDeferred }

type walletOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					Value        string `json:"value"`
					CurrencyCode string `json:"currency_code"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (g *WalletGateway) CreateRemoteOrder(ctx context.Context, ord RemoteOrder) (*CreateResult, error) {
	items := make([]map[string]interface{}, 0, len(ord.Items))
	for _, it := range ord.Items {
		name := it.Name
		if len(name) > 127 {
			name = name[:127]
		}
		items = append(items, map[string]interface{}{
			"name": name,
			"unit_amount": map[string]string{
				"currency_code": ord.Currency,
				"value":         it.UnitPrice.StringFixed(2),
			},
			"quantity": strconv.Itoa(it.Quantity),
			"sku":      it.SKU,
			"category": "PHYSICAL_GOODS",
		})
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": fmt.Sprintf("order_%d", ord.OrderID),
			"description":  fmt.Sprintf("Order %s", ord.OrderNumber),
			"custom_id":    strconv.FormatUint(uint64(ord.OrderID), 10),
			"invoice_id":   ord.OrderNumber,
			"amount": map[string]interface{}{
				"currency_code": ord.Currency,
				"value":         ord.Amount.StringFixed(2),
			},
			"items": items,
		}},
		"application_context": map[string]interface{}{
			"brand_name":  g.cfg.StoreName,
			"user_action": "PAY_NOW",
			"return_url":  g.cfg.ReturnURL,
			"cancel_url":  g.cfg.CancelURL,
		},
	}

	var remote walletOrder
	raw, err := g.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &remote)
	if err != nil {
		return nil, err
	}

	res := &CreateResult{CorrelationID: remote.ID, Raw: raw}
	for _, link := range remote.Links {
		if link.Rel == "approve" {
			res.ApprovalURL = link.Href
		}
	}
	if res.ApprovalURL == "" {
		return nil, fmt.Errorf("%w: wallet order has no approval link", ErrGateway)
	}
	return res, nil
}

// Confirm has no meaning for the redirect flow; approval happens on the
// provider's pages. It reports the current remote state instead.
func (g *WalletGateway) Confirm(ctx context.Context, correlationID, _ string) (*ConfirmResult, error) {
	status, err := g.Status(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Status: status, CorrelationID: correlationID}, nil
}

func (g *WalletGateway) Status(ctx context.Context, correlationID string) (string, error) {
	var remote walletOrder
	if _, err := g.do(ctx, http.MethodGet, "/v2/checkout/orders/"+correlationID, nil, &remote); err != nil {
		return "", err
	}
	switch remote.Status {
	case "CREATED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return StatusOpen, nil
	case "COMPLETED":
		return StatusSucceeded, nil
	default:
		return StatusFailed, nil
	}
}

func (g *WalletGateway) Capture(ctx context.Context, correlationID string) (*CaptureResult, error) {
	var remote walletOrder
	raw, err := g.do(ctx, http.MethodPost, "/v2/checkout/orders/"+correlationID+"/capture", struct{}{}, &remote)
	if err != nil {
		return nil, err
	}
	if remote.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: wallet capture ended with status %s", ErrGateway, remote.Status)
	}
	if len(remote.PurchaseUnits) == 0 || len(remote.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, fmt.Errorf("%w: no capture in wallet response", ErrGateway)
	}

	capture := remote.PurchaseUnits[0].Payments.Captures[0]
	amount, err := decimal.NewFromString(capture.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: bad capture amount %q", ErrGateway, capture.Amount.Value)
	}
	return &CaptureResult{
		Status:    StatusSucceeded,
		CaptureID: capture.ID,
		Amount:    amount,
		Raw:       raw,
	}, nil
}

func (g *WalletGateway) Refund(ctx context.Context, captureID string, amount decimal.Decimal, reason string) (string, error) {
	payload := map[string]interface{}{
		"amount": map[string]string{
			"value":         amount.StringFixed(2),
			"currency_code": g.cfg.Currency,
		},
		"note_to_payer": reason,
	}
	var refund struct {
		ID string `json:"id"`
	}
	if _, err := g.do(ctx, http.MethodPost, "/v2/payments/captures/"+captureID+"/refund", payload, &refund); err != nil {
		return "", err
	}
	return refund.ID, nil
}

// VerifyWebhookSignature asks the provider to validate the delivery, the way
// the wallet API expects (transmission headers + webhook id + the event).
func (g *WalletGateway) VerifyWebhookSignature(headers http.Header, body []byte) bool {
	var event json.RawMessage
	if err := json.Unmarshal(body, &event); err != nil {
		return false
	}

	payload := map[string]interface{}{
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"webhook_id":        g.cfg.WebhookID,
		"webhook_event":     event,
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.Timeout)
	defer cancel()
	if _, err := g.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &result); err != nil {
		return false
	}
	return result.VerificationStatus == "SUCCESS"
}

func (g *WalletGateway) ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event struct {
		EventType string `json:"event_type"`
		Resource  struct {
			ID       string `json:"id"`
			CustomID string `json:"custom_id"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("parse wallet webhook: %w", err)
	}

	out := &WebhookEvent{CaptureID: event.Resource.ID}
	if id, err := strconv.ParseUint(event.Resource.CustomID, 10, 32); err == nil {
		out.OrderID = uint(id)
	}

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		out.Kind = WebhookCaptureCompleted
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.FAILED":
		out.Kind = WebhookCaptureFailed
	default:
		out.Kind = WebhookIgnored
	}
	return out, nil
}

// token returns a cached access token, exchanging client credentials when
// the cache is empty or near expiry.
func (g *WalletGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(g.cfg.ClientID + ":" + g.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token exchange %d: %s", ErrGateway, resp.StatusCode, raw)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return "", fmt.Errorf("%w: bad token response", ErrGateway)
	}

	g.accessToken = tok.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return g.accessToken, nil
}

// do performs an authenticated JSON round-trip against the wallet provider.
func (g *WalletGateway) do(ctx context.Context, method, path string, payload interface{}, out interface{}) (string, error) {
	token, err := g.token(ctx)
	if err != nil {
		return "", err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	req.Header.Set("Paypal-Request-Id", "req_"+uuid.NewString())

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
		return "", fmt.Errorf("%w: wallet API %d: %s", ErrGateway, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return "", fmt.Errorf("%w: bad wallet API response: %v", ErrGateway, err)
		}
	}
	return string(raw), nil
}
