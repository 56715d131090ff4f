package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/inventory"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// paymentCheckDelay is how long after creating a gateway order the delayed
// payment-check event fires, so abandoned checkouts get looked at.
const paymentCheckDelay = 15 * time.Minute

type CreateOrderRequest struct {
	UserID            string
	CartID            uint
	ShippingAddressID uint
	BillingAddressID  uint // falls back to the shipping address when zero
	PaymentMethod     models.PaymentMethod
	Notes             string
}

type CreateOrderResult struct {
	OrderID        uint            `json:"orderId"`
	OrderNumber    string          `json:"orderNumber"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	GatewayOrderID string          `json:"gatewayOrderId,omitempty"`
	ApprovalURL    string          `json:"approvalUrl,omitempty"`
	Reused         bool            `json:"-"`
}

// CreateOrder runs the order-creation leg of the checkout saga. The payment
// method's settlement timing decides the shape: immediate methods (cash on
// delivery) commit stock and clear the cart in the same transaction; deferred
// methods (card, wallet) create the order pending and leave stock untouched
// until settlement.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	gw, err := s.gateways.Get(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if gw.SettlementTiming() == gateway.TimingImmediate {
		return s.createImmediate(ctx, gw, req)
	}
	return s.createDeferred(ctx, gw, req)
}

// createImmediate is the cash-on-delivery path: everything happens in one
// durable transaction, so a stock failure partway leaves nothing behind.
func (s *Service) createImmediate(ctx context.Context, gw gateway.Gateway, req CreateOrderRequest) (*CreateOrderResult, error) {
	var result *CreateOrderResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		snap, err := s.snapshotCart(tx, req.UserID, req.CartID)
		if err != nil {
			return err
		}
		order, err := s.buildOrder(tx, req, snap, true)
		if err != nil {
			return err
		}

		create, err := gw.CreateRemoteOrder(ctx, remoteOrderFor(order, snap))
		if err != nil {
			return err
		}
		order.Payment.GatewayOrderID = create.CorrelationID

		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("persist order: %w", err)
		}
		for _, line := range order.Items {
			if err := inventory.Reserve(tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		if err := tx.Where("cart_id = ?", snap.Cart.CartID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}

		result = &CreateOrderResult{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      "created",
			Amount:      order.TotalAmount,
			Currency:    order.Currency,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// createDeferred is the gateway path: the order is persisted pending, then
// the remote order is opened outside any store transaction, then the
// correlation id is saved. Stock is not touched; settlement commits it later.
func (s *Service) createDeferred(ctx context.Context, gw gateway.Gateway, req CreateOrderRequest) (*CreateOrderResult, error) {
	if reused, err := s.reusePendingOrder(ctx, gw, req.UserID); err == nil && reused != nil {
		return reused, nil
	} else if err != nil {
		log.Printf("checkout: dedupe check failed for user %s: %v", req.UserID, err)
	}

	var (
		order *models.Order
		snap  *cartSnapshot
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if snap, err = s.snapshotCart(tx, req.UserID, req.CartID); err != nil {
			return err
		}
		if order, err = s.buildOrder(tx, req, snap, false); err != nil {
			return err
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("persist order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Remote call happens after the local commit; the transaction is never
	// held open across the network round-trip. A failure here leaves the
	// order pending with no correlation id, which a later confirm attempt
	// can repair via ensureRemoteOrder.
	create, err := gw.CreateRemoteOrder(ctx, remoteOrderFor(order, snap))
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"gateway_order_id": create.CorrelationID,
		"approval_url":     create.ApprovalURL,
	}
	if create.Raw != "" {
		updates["gateway_response"] = create.Raw
	}
	if err := s.db.Model(&models.Payment{}).
		Where("order_id = ?", order.ID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("persist gateway correlation: %w", err)
	}

	if s.notifier != nil {
		s.notifier.SchedulePaymentCheck(order.ID, paymentCheckDelay)
	}

	return &CreateOrderResult{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         "created",
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		GatewayOrderID: create.CorrelationID,
		ApprovalURL:    create.ApprovalURL,
	}, nil
}

// reusePendingOrder implements the checkout dedupe window: a pending order
// for the same user and method, younger than the window, whose remote order
// is still payable, is returned instead of creating a duplicate. Best-effort
// only; duplicate remote orders are tolerated, not prevented by locking.
func (s *Service) reusePendingOrder(ctx context.Context, gw gateway.Gateway, userID string) (*CreateOrderResult, error) {
	var order models.Order
	err := s.db.Preload("Payment").
		Where("user_id = ? AND payment_method = ? AND payment_status = ? AND created_at > ?",
			userID, gw.Method(), models.PaymentStatusPending, time.Now().Add(-s.cfg.DedupeWindow)).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if order.Payment.Status != models.GatewayPaymentPending || order.Payment.GatewayOrderID == "" {
		return nil, nil
	}

	status, err := gw.Status(ctx, order.Payment.GatewayOrderID)
	if err != nil || status != gateway.StatusOpen {
		return nil, nil
	}

	return &CreateOrderResult{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         "created",
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		GatewayOrderID: order.Payment.GatewayOrderID,
		ApprovalURL:    order.Payment.ApprovalURL,
		Reused:         true,
	}, nil
}

// buildOrder assembles the order aggregate (order, items, payment) from a
// cart snapshot without persisting it.
func (s *Service) buildOrder(tx *gorm.DB, req CreateOrderRequest, snap *cartSnapshot, commitStock bool) (*models.Order, error) {
	shipping, err := s.loadAddress(tx, req.UserID, req.ShippingAddressID)
	if err != nil {
		return nil, err
	}
	billing := shipping
	if req.BillingAddressID != 0 && req.BillingAddressID != req.ShippingAddressID {
		if billing, err = s.loadAddress(tx, req.UserID, req.BillingAddressID); err != nil {
			return nil, err
		}
	}

	tax, shippingCost, total := s.totals(snap.Subtotal)
	order := &models.Order{
		OrderNumber:     newOrderNumber(),
		UserID:          req.UserID,
		Items:           snap.Lines,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: shipping.Snapshot(),
		BillingAddress:  billing.Snapshot(),
		Subtotal:        snap.Subtotal,
		TaxAmount:       tax,
		ShippingCost:    shippingCost,
		TotalAmount:     total,
		Currency:        s.cfg.Currency,
		Notes:           req.Notes,
		StockCommitted:  commitStock,
		Payment: models.Payment{
			PaymentMethod: req.PaymentMethod,
			Amount:        total,
			Currency:      s.cfg.Currency,
			Status:        models.GatewayPaymentPending,
		},
	}
	return order, nil
}

func remoteOrderFor(order *models.Order, snap *cartSnapshot) gateway.RemoteOrder {
	return gateway.RemoteOrder{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Description: "Order #" + order.OrderNumber,
		Items:       snap.Items,
	}
}

// newOrderNumber mints a unique, human-readable order reference.
func newOrderNumber() string {
	return "ORD-" + time.Now().Format("20060102150405") + "-" + uuid.NewString()[:8]
}
