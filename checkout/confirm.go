package checkout

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

type ConfirmResult struct {
	OrderID       uint   `json:"orderId"`
	Status        string `json:"status"`
	CorrelationID string `json:"paymentIntentId,omitempty"`
	Continuation  string `json:"clientSecret,omitempty"`
}

// ConfirmCardPayment drives the card gateway's confirm step. Immediate
// success settles the order; a step-up-authentication requirement hands the
// continuation token back without settling; a gateway failure leaves the
// order pending so the shopper can retry, possibly with another method.
func (s *Service) ConfirmCardPayment(ctx context.Context, orderID uint, methodRef, userID string) (*ConfirmResult, error) {
	order, gw, err := s.loadForPayment(orderID, userID, models.PaymentMethodCard)
	if err != nil {
		return nil, err
	}

	correlation, err := s.ensureRemoteOrder(ctx, gw, order)
	if err != nil {
		return nil, err
	}

	res, err := gw.Confirm(ctx, correlation, methodRef)
	if err != nil {
		return nil, err
	}
	s.recordGatewayResponse(order.ID, res.CorrelationID, res.Raw)

	switch res.Status {
	case gateway.StatusSucceeded:
		if err := s.Settle(order.ID, &gateway.CaptureResult{CaptureID: res.CorrelationID, Raw: res.Raw}); err != nil && !errors.Is(err, ErrAlreadySettled) {
			return nil, err
		}
		return &ConfirmResult{OrderID: order.ID, Status: gateway.StatusSucceeded, CorrelationID: res.CorrelationID}, nil

	case gateway.StatusRequiresAction:
		// Nothing settles; the frontend completes authentication and then
		// calls CompleteCardPayment with the same correlation id.
		return &ConfirmResult{
			OrderID:       order.ID,
			Status:        gateway.StatusRequiresAction,
			CorrelationID: res.CorrelationID,
			Continuation:  res.Continuation,
		}, nil

	case gateway.StatusProcessing:
		return &ConfirmResult{OrderID: order.ID, Status: gateway.StatusProcessing, CorrelationID: res.CorrelationID}, nil

	default:
		// Terminal gateway decline: the order stays pending deliberately so
		// a retry with a different payment method remains possible.
		return nil, fmt.Errorf("%w: confirm ended with status %s", gateway.ErrGateway, res.Status)
	}
}

// CompleteCardPayment resumes the flow after the frontend finished step-up
// authentication: it re-reads the intent and settles on success.
func (s *Service) CompleteCardPayment(ctx context.Context, orderID uint, userID string) (*ConfirmResult, error) {
	order, gw, err := s.loadForPayment(orderID, userID, models.PaymentMethodCard)
	if err != nil {
		return nil, err
	}
	if order.Payment.GatewayOrderID == "" {
		return nil, fmt.Errorf("%w: no payment intent recorded", gateway.ErrGateway)
	}

	res, err := gw.Confirm(ctx, order.Payment.GatewayOrderID, "")
	if err != nil {
		return nil, err
	}
	s.recordGatewayResponse(order.ID, res.CorrelationID, res.Raw)

	switch res.Status {
	case gateway.StatusSucceeded:
		if err := s.Settle(order.ID, &gateway.CaptureResult{CaptureID: res.CorrelationID, Raw: res.Raw}); err != nil && !errors.Is(err, ErrAlreadySettled) {
			return nil, err
		}
		return &ConfirmResult{OrderID: order.ID, Status: gateway.StatusSucceeded, CorrelationID: res.CorrelationID}, nil
	case gateway.StatusRequiresAction:
		return &ConfirmResult{
			OrderID:       order.ID,
			Status:        gateway.StatusRequiresAction,
			CorrelationID: res.CorrelationID,
			Continuation:  res.Continuation,
		}, nil
	case gateway.StatusProcessing:
		return &ConfirmResult{OrderID: order.ID, Status: gateway.StatusProcessing, CorrelationID: res.CorrelationID}, nil
	default:
		return nil, fmt.Errorf("%w: authentication ended with status %s", gateway.ErrGateway, res.Status)
	}
}

// loadForPayment fetches a user's order with its payment and checks it is
// still payable with the expected method.
func (s *Service) loadForPayment(orderID uint, userID string, method models.PaymentMethod) (*models.Order, gateway.Gateway, error) {
	var order models.Order
	if err := s.db.Preload("Payment").Preload("Items").
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrOrderNotFound
		}
		return nil, nil, err
	}
	if order.PaymentMethod != method {
		return nil, nil, ErrWrongPaymentMethod
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		return nil, nil, fmt.Errorf("%w: payment status is %s", ErrPaymentProcessed, order.PaymentStatus)
	}
	gw, err := s.gateways.Get(method)
	if err != nil {
		return nil, nil, err
	}
	return &order, gw, nil
}

// ensureRemoteOrder returns the order's gateway correlation id, opening the
// remote order first if an earlier attempt failed before one was recorded.
func (s *Service) ensureRemoteOrder(ctx context.Context, gw gateway.Gateway, order *models.Order) (string, error) {
	if order.Payment.GatewayOrderID != "" {
		return order.Payment.GatewayOrderID, nil
	}

	items := make([]gateway.LineItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, gateway.LineItem{
			Name:      line.ProductName,
			SKU:       line.ProductSKU,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	create, err := gw.CreateRemoteOrder(ctx, gateway.RemoteOrder{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Description: "Order #" + order.OrderNumber,
		Items:       items,
	})
	if err != nil {
		return "", err
	}
	s.recordGatewayResponse(order.ID, create.CorrelationID, create.Raw)
	return create.CorrelationID, nil
}

// recordGatewayResponse saves the provider correlation id and raw payload on
// the payment row for audit. Best effort; a failed write is logged by the
// caller path, never fatal to the payment flow.
func (s *Service) recordGatewayResponse(orderID uint, correlationID, raw string) {
	updates := map[string]interface{}{}
	if correlationID != "" {
		updates["gateway_order_id"] = correlationID
	}
	if raw != "" {
		updates["gateway_response"] = raw
	}
	if len(updates) == 0 {
		return
	}
	s.db.Model(&models.Payment{}).Where("order_id = ?", orderID).Updates(updates)
}
