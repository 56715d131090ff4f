package checkout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/inventory"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// cartSnapshot freezes a cart at order time: validated lines with prices
// captured from the catalog, plus the running subtotal. After the order is
// created the cart is never read again.
type cartSnapshot struct {
	Cart     models.Cart
	Lines    []models.OrderItem
	Items    []gateway.LineItem
	Subtotal decimal.Decimal
}

// snapshotCart loads and validates the user's cart. The stock check here is
// advisory (it produces a friendly error before any writes); the
// authoritative check is the conditional decrement in the inventory ledger.
func (s *Service) snapshotCart(db *gorm.DB, userID string, cartID uint) (*cartSnapshot, error) {
	var cart models.Cart
	if err := db.Preload("Items").
		Where("cart_id = ? AND user_id = ?", cartID, userID).
		First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrCartEmpty
	}

	snap := &cartSnapshot{Cart: cart, Subtotal: decimal.Zero}
	for _, item := range cart.Items {
		var product models.Product
		if err := db.First(&product, "id = ?", item.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: product %d", ErrProductUnavailable, item.ProductID)
			}
			return nil, err
		}
		if product.Status != models.ProductStatusActive {
			return nil, fmt.Errorf("%w: %q", ErrProductUnavailable, product.Name)
		}
		if product.Quantity < item.Quantity {
			return nil, fmt.Errorf("%w for %q: available %d, requested %d",
				inventory.ErrInsufficientStock, product.Name, product.Quantity, item.Quantity)
		}

		unitPrice := product.EffectivePrice()
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		snap.Subtotal = snap.Subtotal.Add(lineTotal)

		snap.Lines = append(snap.Lines, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			ProductSKU:  product.SKU,
			UnitPrice:   unitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  lineTotal,
		})
		snap.Items = append(snap.Items, gateway.LineItem{
			Name:      product.Name,
			SKU:       product.SKU,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
		})
	}
	return snap, nil
}

// loadAddress fetches an address-book row scoped to its owner.
func (s *Service) loadAddress(db *gorm.DB, userID string, addressID uint) (*models.Address, error) {
	var addr models.Address
	if err := db.Where("id = ? AND user_id = ?", addressID, userID).First(&addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return &addr, nil
}

// totals computes tax, shipping, and the grand total from a subtotal. The
// total invariant (total = subtotal + tax + shipping) holds by construction
// and is never recomputed after order creation.
func (s *Service) totals(subtotal decimal.Decimal) (tax, shipping, total decimal.Decimal) {
	tax = subtotal.Mul(s.cfg.TaxRate).Round(2)
	shipping = s.cfg.ShippingFlat
	total = subtotal.Add(tax).Add(shipping)
	return tax, shipping, total
}
