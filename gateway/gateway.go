// Package gateway adapts external payment providers behind one capability
// interface. Three variants ship: a cash-on-delivery stub, a card gateway
// with a step-up authentication sub-state, and a redirect wallet gateway.
// Adapters are constructed once at startup and injected into the checkout
// service; they hold their own bounded-timeout HTTP clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// ErrGateway wraps every upstream provider failure so callers can map the
// whole class to a 502 without inspecting provider-specific errors.
var ErrGateway = errors.New("payment gateway error")

// Timing states when stock is committed for a payment method: at order
// creation (cash on delivery) or at settlement (gateway-backed methods).
type Timing string

const (
	TimingImmediate Timing = "immediate"
	TimingDeferred  Timing = "deferred"
)

// Remote payment statuses shared across variants. StatusOpen means the
// remote order/intent is still payable, which is what the checkout dedupe
// window checks before reusing a pending order.
const (
	StatusSucceeded      = "succeeded"
	StatusRequiresAction = "requires_action"
	StatusProcessing     = "processing"
	StatusFailed         = "failed"
	StatusOpen           = "open"
)

type LineItem struct {
	Name      string
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
}

// RemoteOrder is the request to open an order/intent at the provider.
type RemoteOrder struct {
	OrderID     uint
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Items       []LineItem
}

type CreateResult struct {
	CorrelationID string // provider-side id used for every later call
	ApprovalURL   string // redirect gateways only
	Raw           string // raw provider response, persisted for audit
}

type ConfirmResult struct {
	Status         string
	RequiresAction bool
	Continuation   string // client secret the frontend resumes step-up auth with
	CorrelationID  string
	Raw            string
}

type CaptureResult struct {
	Status    string
	CaptureID string
	Amount    decimal.Decimal
	Raw       string
}

type WebhookEventKind string

const (
	WebhookCaptureCompleted WebhookEventKind = "capture_completed"
	WebhookCaptureFailed    WebhookEventKind = "capture_failed"
	WebhookIgnored          WebhookEventKind = "ignored"
)

// WebhookEvent is the provider-neutral form of a gateway notification.
type WebhookEvent struct {
	Kind          WebhookEventKind
	OrderID       uint
	CorrelationID string
	CaptureID     string
}

// Gateway is the common capability set over payment providers.
type Gateway interface {
	Method() models.PaymentMethod
	SettlementTiming() Timing

	CreateRemoteOrder(ctx context.Context, ord RemoteOrder) (*CreateResult, error)
	Confirm(ctx context.Context, correlationID, methodRef string) (*ConfirmResult, error)
	Status(ctx context.Context, correlationID string) (string, error)
	Capture(ctx context.Context, correlationID string) (*CaptureResult, error)
	Refund(ctx context.Context, captureID string, amount decimal.Decimal, reason string) (string, error)

	VerifyWebhookSignature(headers http.Header, body []byte) bool
	ParseWebhookEvent(body []byte) (*WebhookEvent, error)
}

// Registry holds the configured gateway per payment method.
type Registry map[models.PaymentMethod]Gateway

func NewRegistry(gateways ...Gateway) Registry {
	r := make(Registry, len(gateways))
	for _, g := range gateways {
		r[g.Method()] = g
	}
	return r
}

func (r Registry) Get(method models.PaymentMethod) (Gateway, error) {
	g, ok := r[method]
	if !ok {
		return nil, fmt.Errorf("unsupported payment method %q", method)
	}
	return g, nil
}
