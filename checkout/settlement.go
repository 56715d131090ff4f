package checkout

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/inventory"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// Settle is the settlement transition shared by the synchronous confirm and
// capture paths and the asynchronous webhook path. Within one durable
// transaction it commits stock per order line, marks the order
// confirmed/paid, marks the payment succeeded, and clears the user's
// remaining cart items.
//
// The guard is a conditional update on a still-pending order acted upon
// inside the same transaction: when two callers race (sync capture vs.
// webhook), exactly one settles and the other gets ErrAlreadySettled, which
// callers treat as a no-op. The status condition also keeps a late webhook
// from resurrecting an order that was cancelled while its capture was in
// flight; cancelled is terminal.
func (s *Service) Settle(orderID uint, capture *gateway.CaptureResult) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND payment_status = ? AND status = ?",
				orderID, models.PaymentStatusPending, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":          models.OrderStatusConfirmed,
				"payment_status":  models.PaymentStatusPaid,
				"stock_committed": true,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySettled
		}

		for _, line := range order.Items {
			if err := inventory.Reserve(tx, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("settle order %d line %d: %w", orderID, line.ProductID, err)
			}
		}

		payUpdates := map[string]interface{}{"status": models.GatewayPaymentSucceeded}
		if capture != nil {
			if capture.CaptureID != "" {
				payUpdates["transaction_id"] = capture.CaptureID
			}
			if capture.Raw != "" {
				payUpdates["gateway_response"] = capture.Raw
			}
		}
		if err := tx.Model(&models.Payment{}).
			Where("order_id = ?", orderID).
			Updates(payUpdates).Error; err != nil {
			return err
		}

		// Clear whatever is left in the user's cart; the order no longer
		// depends on it.
		var cart models.Cart
		if err := tx.Where("user_id = ?", order.UserID).First(&cart).Error; err == nil {
			if err := tx.Where("cart_id = ?", cart.CartID).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var settled models.Order
	if err := s.db.First(&settled, "id = ?", orderID).Error; err == nil {
		s.notifyStatus(&settled, models.OrderStatusConfirmed)
	}
	return nil
}
