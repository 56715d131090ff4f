package checkout

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// UpdateOrderStatus moves an order along the fulfilment state machine.
// Transitioning to cancelled releases committed stock; transitioning to
// delivered settles a still-pending payment, which is how cash orders get
// marked paid on handover.
func (s *Service) UpdateOrderStatus(orderID uint, next models.OrderStatus) (*models.Order, error) {
	var order models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		if !models.CanTransition(order.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
		}

		updates := map[string]interface{}{"status": next}
		if next == models.OrderStatusCancelled {
			now := time.Now()
			updates["cancelled_by"] = "admin"
			updates["cancelled_at"] = &now
		}
		if next == models.OrderStatusDelivered && order.PaymentStatus == models.PaymentStatusPending {
			updates["payment_status"] = models.PaymentStatusPaid
		}

		// Conditional on the status just read; a concurrent transition
		// leaves zero rows and this attempt fails instead of double-firing
		// the side effects below.
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
		}

		switch next {
		case models.OrderStatusCancelled:
			if err := s.failPendingPayment(tx, order.ID); err != nil {
				return err
			}
			if order.PaymentStatus == models.PaymentStatusPending {
				order.PaymentStatus = models.PaymentStatusFailed
			}
			if err := s.releaseOrderStock(tx, &order); err != nil {
				return err
			}
		case models.OrderStatusDelivered:
			if order.PaymentStatus == models.PaymentStatusPending {
				if err := tx.Model(&models.Payment{}).
					Where("order_id = ? AND status = ?", order.ID, models.GatewayPaymentPending).
					Update("status", models.GatewayPaymentSucceeded).Error; err != nil {
					return err
				}
				order.PaymentStatus = models.PaymentStatusPaid
			}
		}
		order.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(&order, next)
	return &order, nil
}
