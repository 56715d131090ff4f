package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type GatewayPaymentStatus string

const (
	GatewayPaymentPending   GatewayPaymentStatus = "pending"
	GatewayPaymentSucceeded GatewayPaymentStatus = "succeeded"
	GatewayPaymentFailed    GatewayPaymentStatus = "failed"
	GatewayPaymentRefunded  GatewayPaymentStatus = "refunded"
)

// Payment is the single payment record owned by an order. Status is monotonic
// except for the refund path (succeeded -> refunded). GatewayOrderID holds the
// remote correlation id (payment intent id for card, gateway order id for
// wallet); TransactionID holds the capture id once funds are taken.
type Payment struct {
	ID              uint                 `gorm:"primaryKey" json:"id"`
	OrderID         uint                 `gorm:"uniqueIndex;not null" json:"order_id"`
	PaymentMethod   PaymentMethod        `gorm:"type:VARCHAR(20);not null" json:"payment_method"`
	GatewayOrderID  string               `gorm:"index" json:"gateway_order_id,omitempty"`
	TransactionID   string               `gorm:"index" json:"transaction_id,omitempty"`
	ApprovalURL     string               `json:"approval_url,omitempty"` // redirect gateways: where the shopper approves payment
	Amount          decimal.Decimal      `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency        string               `gorm:"type:VARCHAR(3);default:'USD'" json:"currency"`
	Status          GatewayPaymentStatus `gorm:"type:VARCHAR(20);default:'pending'" json:"status"`
	GatewayResponse string               `gorm:"type:text" json:"-"` // raw provider payload kept for audit/replay
	RefundedAmount  decimal.Decimal      `gorm:"type:decimal(10,2);default:0" json:"refunded_amount"`
	RefundID        string               `gorm:"index" json:"refund_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}
