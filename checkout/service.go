// Package checkout is the saga coordinator for the storefront: it turns a
// cart into a durable order, drives the payment gateway to a terminal state,
// and keeps order, payment, and inventory records consistent across partial
// failures, gateway callbacks, and client retries.
package checkout

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrCartEmpty          = errors.New("cart is empty")
	ErrAddressNotFound    = errors.New("address not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrProductUnavailable = errors.New("product is not available")
	ErrPaymentProcessed   = errors.New("order payment already processed")
	ErrWrongPaymentMethod = errors.New("order uses a different payment method")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotCancellable     = errors.New("order cannot be cancelled")
	ErrAlreadySettled     = errors.New("order already settled")
	ErrNotRefundable      = errors.New("order cannot be refunded")
)

// Notifier receives best-effort, post-commit events. Failures are the
// notifier's problem; they never roll back an order mutation.
type Notifier interface {
	OrderStatusChanged(order *models.Order, status models.OrderStatus)
	SchedulePaymentCheck(orderID uint, delay time.Duration)
}

type Config struct {
	Currency     string
	TaxRate      decimal.Decimal // e.g. 0.08 for 8%
	ShippingFlat decimal.Decimal
	DedupeWindow time.Duration // pending gateway orders younger than this are reused
}

// Service orchestrates checkout. One instance per process; gateways and the
// notifier are injected at startup.
type Service struct {
	db       *gorm.DB
	gateways gateway.Registry
	notifier Notifier
	cfg      Config
}

func New(db *gorm.DB, gateways gateway.Registry, notifier Notifier, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.DedupeWindow == 0 {
		cfg.DedupeWindow = 30 * time.Minute
	}
	return &Service{db: db, gateways: gateways, notifier: notifier, cfg: cfg}
}

// DB exposes the underlying handle for read-side query handlers.
func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) notifyStatus(order *models.Order, status models.OrderStatus) {
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(order, status)
	}
}
