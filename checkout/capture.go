package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

type CaptureResult struct {
	OrderID        uint            `json:"orderId"`
	Status         string          `json:"status"`
	TransactionID  string          `json:"transactionId"`
	GatewayOrderID string          `json:"gatewayOrderId"`
	Amount         decimal.Decimal `json:"amount"`
}

// CaptureWalletPayment captures an approved redirect-wallet order and runs
// the settlement transition. A capture failure is terminal on the gateway
// side and cannot be rolled back, so the order/payment are best-effort
// marked failed/cancelled before the gateway error is surfaced.
func (s *Service) CaptureWalletPayment(ctx context.Context, orderID uint, gatewayOrderID, userID string) (*CaptureResult, error) {
	order, gw, err := s.loadForPayment(orderID, userID, models.PaymentMethodWallet)
	if err != nil {
		return nil, err
	}

	correlation := order.Payment.GatewayOrderID
	if correlation == "" {
		correlation = gatewayOrderID
	}
	if correlation == "" {
		return nil, fmt.Errorf("%w: no gateway order recorded", gateway.ErrGateway)
	}
	if gatewayOrderID != "" && gatewayOrderID != correlation {
		return nil, fmt.Errorf("%w: gateway order mismatch", ErrOrderNotFound)
	}

	capture, err := gw.Capture(ctx, correlation)
	if err != nil {
		s.markPaymentFailed(order.ID, true)
		return nil, err
	}

	if err := s.Settle(order.ID, capture); err != nil && !errors.Is(err, ErrAlreadySettled) {
		return nil, err
	}

	return &CaptureResult{
		OrderID:        order.ID,
		Status:         gateway.StatusSucceeded,
		TransactionID:  capture.CaptureID,
		GatewayOrderID: correlation,
		Amount:         capture.Amount,
	}, nil
}

// markPaymentFailed is the non-transactional cleanup after a terminal
// gateway failure: order payment_status failed (optionally cancelling the
// order) and payment failed, guarded so an already-settled order is never
// downgraded. Stock was never committed on this path, so none is released.
func (s *Service) markPaymentFailed(orderID uint, cancelOrder bool) {
	updates := map[string]interface{}{"payment_status": models.PaymentStatusFailed}
	if cancelOrder {
		updates["status"] = models.OrderStatusCancelled
		updates["cancelled_by"] = "system"
	}
	if err := s.db.Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, models.PaymentStatusPending).
		Updates(updates).Error; err != nil {
		log.Printf("checkout: failed to mark order %d payment failed: %v", orderID, err)
	}
	if err := s.db.Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, models.GatewayPaymentPending).
		Update("status", models.GatewayPaymentFailed).Error; err != nil {
		log.Printf("checkout: failed to mark payment for order %d failed: %v", orderID, err)
	}
}
