package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// CODGateway is the cash-on-delivery stub. There is no remote provider:
// creating the remote order just mints a local reference, stock commits
// immediately, and confirm/capture are never driven.
type CODGateway struct{}

func NewCODGateway() *CODGateway { return &CODGateway{} }

func (g *CODGateway) Method() models.PaymentMethod { return models.PaymentMethodCOD }
func (g *CODGateway) SettlementTiming() Timing     { return TimingImmediate }

func (g *CODGateway) CreateRemoteOrder(_ context.Context, _ RemoteOrder) (*CreateResult, error) {
	return &CreateResult{
		CorrelationID: "cod_" + time.Now().Format("20060102150405") + "_" + uuid.NewString()[:8],
	}, nil
}

func (g *CODGateway) Confirm(context.Context, string, string) (*ConfirmResult, error) {
	return nil, fmt.Errorf("%w: cash on delivery has no confirm step", ErrGateway)
}

func (g *CODGateway) Status(context.Context, string) (string, error) {
	return StatusProcessing, nil
}

func (g *CODGateway) Capture(context.Context, string) (*CaptureResult, error) {
	return nil, fmt.Errorf("%w: cash on delivery has no capture step", ErrGateway)
}

func (g *CODGateway) Refund(context.Context, string, decimal.Decimal, string) (string, error) {
	return "", fmt.Errorf("%w: cash on delivery refunds are handled out of band", ErrGateway)
}

func (g *CODGateway) VerifyWebhookSignature(http.Header, []byte) bool { return false }

func (g *CODGateway) ParseWebhookEvent([]byte) (*WebhookEvent, error) {
	return &WebhookEvent{Kind: WebhookIgnored}, nil
}
