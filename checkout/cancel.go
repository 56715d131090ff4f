package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/inventory"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

type CancelRequest struct {
	OrderID uint
	UserID  string
	Admin   bool
	Reason  string
	Notes   string
}

// CancelOrder cancels an order that has not shipped yet. Stock committed to
// the order is returned to the catalog exactly once; orders created on the
// deferred gateway path that never settled hold no stock, so nothing is
// released for them.
func (s *Service) CancelOrder(req CancelRequest) (*models.Order, error) {
	var order models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Preload("Items").Where("id = ?", req.OrderID)
		if !req.Admin {
			q = q.Where("user_id = ?", req.UserID)
		}
		if err := q.First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		if !models.CanTransition(order.Status, models.OrderStatusCancelled) {
			return fmt.Errorf("%w: order is %s", ErrNotCancellable, order.Status)
		}

		cancelledBy := "customer"
		if req.Admin {
			cancelledBy = "admin"
		}
		now := time.Now()
		updates := map[string]interface{}{
			"status":              models.OrderStatusCancelled,
			"cancellation_reason": req.Reason,
			"cancellation_notes":  req.Notes,
			"cancelled_by":        cancelledBy,
			"cancelled_at":        &now,
		}
		// Conditional on the status just read, so a racing cancel or
		// fulfilment transition makes exactly one of the two win.
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: order is no longer %s", ErrNotCancellable, order.Status)
		}
		order.Status = models.OrderStatusCancelled
		order.CancelledBy = cancelledBy
		order.CancelledAt = &now

		if err := s.failPendingPayment(tx, order.ID); err != nil {
			return err
		}
		if order.PaymentStatus == models.PaymentStatusPending {
			order.PaymentStatus = models.PaymentStatusFailed
		}
		return s.releaseOrderStock(tx, &order)
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(&order, models.OrderStatusCancelled)
	return &order, nil
}

// RefundPayment refunds a delivered order through its gateway and records
// the refund locally. The gateway call happens before the local transaction;
// a refund that succeeds remotely but fails to record locally is surfaced
// for manual follow-up rather than retried blind.
func (s *Service) RefundPayment(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	var order models.Order
	if err := s.db.Preload("Items").Preload("Payment").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if !models.CanTransition(order.Status, models.OrderStatusRefunded) {
		return nil, fmt.Errorf("%w: order is %s", ErrNotRefundable, order.Status)
	}
	if order.PaymentStatus != models.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: payment is %s", ErrNotRefundable, order.PaymentStatus)
	}

	gw, err := s.gateways.Get(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	var refundID string
	if order.Payment.TransactionID != "" {
		refundID, err = gw.Refund(ctx, order.Payment.TransactionID, order.TotalAmount, reason)
		if err != nil {
			return nil, err
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&order).Updates(map[string]interface{}{
			"status":         models.OrderStatusRefunded,
			"payment_status": models.PaymentStatusRefunded,
		}).Error; err != nil {
			return err
		}
		if order.Payment.ID != 0 {
			updates := map[string]interface{}{
				"status":          models.GatewayPaymentRefunded,
				"refunded_amount": order.TotalAmount,
			}
			if refundID != "" {
				updates["refund_id"] = refundID
			}
			if err := tx.Model(&order.Payment).Updates(updates).Error; err != nil {
				return err
			}
		}
		return s.releaseOrderStock(tx, &order)
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(&order, models.OrderStatusRefunded)
	return &order, nil
}

// failPendingPayment marks an order's uncollected payment failed so a
// cancelled order can never settle later and never matches the checkout
// dedupe window. Guarded; a payment already paid or failed is left alone.
func (s *Service) failPendingPayment(tx *gorm.DB, orderID uint) error {
	if err := tx.Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, models.PaymentStatusPending).
		Update("payment_status", models.PaymentStatusFailed).Error; err != nil {
		return err
	}
	return tx.Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, models.GatewayPaymentPending).
		Update("status", models.GatewayPaymentFailed).Error
}

// releaseOrderStock returns the order's committed quantities to the catalog.
// The compensation is gated on atomically clearing the commitment flag, so
// two racing cancel paths release at most once: whichever update flips the
// flag performs the release, the other sees zero rows and does nothing.
func (s *Service) releaseOrderStock(tx *gorm.DB, order *models.Order) error {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND stock_committed = ?", order.ID, true).
		Update("stock_committed", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	for _, item := range order.Items {
		if err := inventory.Release(tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	order.StockCommitted = false
	return nil
}
