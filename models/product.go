package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

type Product struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"not null" json:"name"`
	SKU         string          `gorm:"uniqueIndex" json:"sku"`
	Description string          `json:"description"`
	Status      ProductStatus   `gorm:"type:VARCHAR(20);default:'active'" json:"status"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	OnlinePrice decimal.Decimal `gorm:"type:decimal(10,2)" json:"online_price"`
	Quantity    int             `gorm:"default:0" json:"quantity"` // available stock
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// EffectivePrice is what a storefront sale charges: the online price when one
// is set, the regular price otherwise.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.OnlinePrice.IsPositive() {
		return p.OnlinePrice
	}
	return p.Price
}
