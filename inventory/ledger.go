// Package inventory exposes atomic reserve/release operations on product
// stock. Both are expressed as single conditional UPDATEs so concurrent
// reservations against the same product serialize at the database instead of
// racing through a read-then-write in application code.
package inventory

import (
	"errors"

	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
)

// Reserve decrements a product's available quantity by qty, failing with
// ErrInsufficientStock when fewer than qty units remain. The decrement and
// the floor check are one statement; zero rows affected means the check
// failed (or the product does not exist).
func Reserve(db *gorm.DB, productID uint, qty int) error {
	res := db.Model(&models.Product{}).
		Where("id = ? AND quantity >= ?", productID, qty).
		Update("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrProductNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

// Release increments a product's available quantity by qty. Used as the
// compensating action on cancellation, refund, or a failed settlement.
func Release(db *gorm.DB, productID uint, qty int) error {
	res := db.Model(&models.Product{}).
		Where("id = ?", productID).
		Update("quantity", gorm.Expr("quantity + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}
