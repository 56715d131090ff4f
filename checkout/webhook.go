package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// ErrBadSignature reports a webhook whose signature did not verify. The
// transport layer still answers 200 so the provider does not retry forever.
var ErrBadSignature = errors.New("webhook signature verification failed")

// HandleWebhook processes an asynchronous gateway notification. Delivery is
// at-least-once, so every branch must tolerate replays: a completed capture
// for an already-settled order is a no-op, and so is a failure notice for an
// order no longer pending.
func (s *Service) HandleWebhook(ctx context.Context, method models.PaymentMethod, headers http.Header, body []byte) error {
	gw, err := s.gateways.Get(method)
	if err != nil {
		return err
	}

	if !gw.VerifyWebhookSignature(headers, body) {
		return ErrBadSignature
	}

	ev, err := gw.ParseWebhookEvent(body)
	if err != nil {
		return err
	}

	switch ev.Kind {
	case gateway.WebhookCaptureCompleted:
		orderID, err := s.resolveWebhookOrder(ev)
		if err != nil {
			return err
		}
		capture := &gateway.CaptureResult{Status: gateway.StatusSucceeded, CaptureID: ev.CaptureID, Raw: string(body)}
		if err := s.Settle(orderID, capture); err != nil {
			if errors.Is(err, ErrAlreadySettled) {
				return nil
			}
			return err
		}
		return nil

	case gateway.WebhookCaptureFailed:
		orderID, err := s.resolveWebhookOrder(ev)
		if err != nil {
			return err
		}
		// Stock was never committed for a deferred order still pending,
		// so the failure only flips payment state.
		s.markPaymentFailed(orderID, false)
		return nil

	default:
		log.Printf("checkout: ignoring %s webhook event", method)
		return nil
	}
}

// resolveWebhookOrder maps an event back to a local order, preferring the
// order id the provider echoed from metadata and falling back to the
// correlation id recorded at order creation.
func (s *Service) resolveWebhookOrder(ev *gateway.WebhookEvent) (uint, error) {
	if ev.OrderID != 0 {
		return ev.OrderID, nil
	}
	if ev.CorrelationID == "" {
		return 0, fmt.Errorf("%w: webhook carries no order reference", ErrOrderNotFound)
	}
	var payment models.Payment
	if err := s.db.Where("gateway_order_id = ?", ev.CorrelationID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: no payment for gateway order %s", ErrOrderNotFound, ev.CorrelationID)
		}
		return 0, err
	}
	return payment.OrderID, nil
}
