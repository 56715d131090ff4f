package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string
type PaymentStatus string
type PaymentMethod string

const (
	// Order statuses (typical e-commerce flow)
	OrderStatusPending    OrderStatus = "pending"    // Order placed, awaiting payment/confirmation
	OrderStatusConfirmed  OrderStatus = "confirmed"  // Payment settled or confirmed by seller
	OrderStatusProcessing OrderStatus = "processing" // Being packed
	OrderStatusShipped    OrderStatus = "shipped"    // Out for delivery
	OrderStatusDelivered  OrderStatus = "delivered"  // Customer received the item
	OrderStatusCancelled  OrderStatus = "cancelled"  // Cancelled before shipping
	OrderStatusRefunded   OrderStatus = "refunded"   // Money returned after delivery

	// Payment statuses on the order itself
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"

	// Payment methods
	PaymentMethodCOD    PaymentMethod = "cash_on_delivery"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
)

type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OrderNumber     string          `gorm:"uniqueIndex;not null" json:"order_number"`
	UserID          string          `gorm:"index;not null" json:"user_id"`
	User            User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Payment         Payment         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"payment"`
	Status          OrderStatus     `gorm:"type:VARCHAR(20);default:'pending'" json:"status"`
	PaymentStatus   PaymentStatus   `gorm:"type:VARCHAR(20);default:'pending'" json:"payment_status"`
	PaymentMethod   PaymentMethod   `gorm:"type:VARCHAR(20);not null" json:"payment_method"`
	ShippingAddress AddressSnapshot `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	BillingAddress  AddressSnapshot `gorm:"embedded;embeddedPrefix:billing_" json:"billing_address"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"tax_amount"`
	ShippingCost    decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"shipping_cost"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	Currency        string          `gorm:"type:VARCHAR(3);default:'USD'" json:"currency"`
	Notes           string          `json:"notes,omitempty"`

	// StockCommitted records whether product stock has been decremented for
	// this order's lines. Immediate for cash on delivery, deferred until
	// settlement for gateway methods. Cancellation releases stock only when
	// this is set, so compensation is never double-applied.
	StockCommitted bool `gorm:"default:false" json:"-"`

	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancellationNotes  string     `json:"cancellation_notes,omitempty"`
	CancelledBy        string     `gorm:"type:VARCHAR(20)" json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderItem snapshots the product at order time. Unit price is captured once
// and never re-read from the catalog.
type OrderItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     uint            `gorm:"index" json:"order_id"`
	ProductID   uint            `gorm:"not null" json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_price"`
}

// AddressSnapshot is copied from the user's address book onto the order so
// later address edits do not alter historical orders.
type AddressSnapshot struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// ValidStatusTransitions is the order-status state machine. Cancelled and
// refunded are terminal.
var ValidStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

// CanTransition reports whether moving from one order status to another is
// allowed by the state machine.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range ValidStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ParseOrderStatus maps a request string to an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return OrderStatus(s), nil
	}
	return "", errors.New("invalid order status")
}

// ParsePaymentMethod maps a request string to a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodCOD, PaymentMethodCard, PaymentMethodWallet:
		return PaymentMethod(s), nil
	}
	return "", errors.New("invalid payment method")
}
