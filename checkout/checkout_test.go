package checkout

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/inventory"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// fakeGateway is a scriptable deferred-settlement gateway. Each call records
// itself so tests can assert how often the remote side was driven.
type fakeGateway struct {
	method models.PaymentMethod

	createCalls  int
	confirmCalls int
	captureCalls int
	statusCalls  int
	refundCalls  int

	createErr  error
	confirmRes gateway.ConfirmResult
	confirmErr error
	captureRes gateway.CaptureResult
	captureErr error
	statusRes  string
	refundID   string
	refundErr  error

	verifyOK bool
	event    *gateway.WebhookEvent
	parseErr error
}

func newFakeGateway(method models.PaymentMethod) *fakeGateway {
	return &fakeGateway{method: method, statusRes: gateway.StatusOpen}
}

func (g *fakeGateway) Method() models.PaymentMethod     { return g.method }
func (g *fakeGateway) SettlementTiming() gateway.Timing { return gateway.TimingDeferred }

func (g *fakeGateway) CreateRemoteOrder(_ context.Context, ord gateway.RemoteOrder) (*gateway.CreateResult, error) {
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gateway.CreateResult{
		CorrelationID: fmt.Sprintf("fake_%d_%d", ord.OrderID, g.createCalls),
		ApprovalURL:   "https://pay.example.test/approve",
		Raw:           `{"fake":true}`,
	}, nil
}

func (g *fakeGateway) Confirm(context.Context, string, string) (*gateway.ConfirmResult, error) {
	g.confirmCalls++
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	res := g.confirmRes
	return &res, nil
}

func (g *fakeGateway) Status(context.Context, string) (string, error) {
	g.statusCalls++
	return g.statusRes, nil
}

func (g *fakeGateway) Capture(context.Context, string) (*gateway.CaptureResult, error) {
	g.captureCalls++
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	res := g.captureRes
	return &res, nil
}

func (g *fakeGateway) Refund(context.Context, string, decimal.Decimal, string) (string, error) {
	g.refundCalls++
	if g.refundErr != nil {
		return "", g.refundErr
	}
	return g.refundID, nil
}

func (g *fakeGateway) VerifyWebhookSignature(http.Header, []byte) bool { return g.verifyOK }

func (g *fakeGateway) ParseWebhookEvent([]byte) (*gateway.WebhookEvent, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	ev := *g.event
	return &ev, nil
}

type fakeNotifier struct {
	statuses []models.OrderStatus
	checks   []uint
}

func (n *fakeNotifier) OrderStatusChanged(_ *models.Order, status models.OrderStatus) {
	n.statuses = append(n.statuses, status)
}

func (n *fakeNotifier) SchedulePaymentCheck(orderID uint, _ time.Duration) {
	n.checks = append(n.checks, orderID)
}

func newCheckoutDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Address{}, &models.Product{},
		&models.Cart{}, &models.CartItem{},
		&models.Order{}, &models.OrderItem{}, &models.Payment{},
	))
	return db
}

func newCheckoutService(db *gorm.DB, notifier Notifier, gateways ...gateway.Gateway) *Service {
	return New(db, gateway.NewRegistry(gateways...), notifier, Config{
		Currency:     "USD",
		TaxRate:      decimal.RequireFromString("0.08"),
		ShippingFlat: decimal.RequireFromString("5.00"),
		DedupeWindow: 30 * time.Minute,
	})
}

// shopper is a seeded customer with an address and a cart holding two lines:
// 2 x Amber Noir at 10.00 (5 in stock) and 1 x Oud Royale at 25.00 (1 in
// stock). Subtotal 45.00, tax 3.60, shipping 5.00, total 53.60.
type shopper struct {
	UserID    string
	CartID    uint
	AddressID uint
	ProductA  uint
	ProductB  uint
}

func seedShopper(t *testing.T, db *gorm.DB) *shopper {
	t.Helper()
	user := &models.User{ID: "user-1", Email: "amina@example.test", Name: "Amina"}
	require.NoError(t, db.Create(user).Error)

	addr := &models.Address{
		UserID: user.ID, Line1: "12 Marina Walk", City: "Dubai", Country: "AE", Phone: "+971500000001",
	}
	require.NoError(t, db.Create(addr).Error)

	prodA := &models.Product{
		Name: "Amber Noir", SKU: "AMB-010",
		Price: decimal.RequireFromString("10.00"), Quantity: 5,
	}
	prodB := &models.Product{
		Name: "Oud Royale", SKU: "OUD-025",
		Price: decimal.RequireFromString("25.00"), Quantity: 1,
	}
	require.NoError(t, db.Create(prodA).Error)
	require.NoError(t, db.Create(prodB).Error)

	cart := &models.Cart{UserID: user.ID}
	require.NoError(t, db.Create(cart).Error)
	require.NoError(t, db.Create(&models.CartItem{CartID: cart.CartID, ProductID: prodA.ID, Quantity: 2}).Error)
	require.NoError(t, db.Create(&models.CartItem{CartID: cart.CartID, ProductID: prodB.ID, Quantity: 1}).Error)

	return &shopper{
		UserID:    user.ID,
		CartID:    cart.CartID,
		AddressID: addr.ID,
		ProductA:  prodA.ID,
		ProductB:  prodB.ID,
	}
}

func stockOf(t *testing.T, db *gorm.DB, productID uint) int {
	t.Helper()
	var product models.Product
	require.NoError(t, db.First(&product, productID).Error)
	return product.Quantity
}

func cartItemCount(t *testing.T, db *gorm.DB, cartID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", cartID).Count(&count).Error)
	return count
}

func loadOrder(t *testing.T, db *gorm.DB, orderID uint) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.Preload("Items").Preload("Payment").First(&order, orderID).Error)
	return &order
}

func (sh *shopper) createRequest(method models.PaymentMethod) CreateOrderRequest {
	return CreateOrderRequest{
		UserID:            sh.UserID,
		CartID:            sh.CartID,
		ShippingAddressID: sh.AddressID,
		PaymentMethod:     method,
	}
}

func TestCreateOrderCashOnDelivery(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	notifier := &fakeNotifier{}
	svc := newCheckoutService(db, notifier, gateway.NewCODGateway())

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCOD))
	require.NoError(t, err)
	require.NotZero(t, res.OrderID)
	assert.NotEmpty(t, res.OrderNumber)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("53.60")), "total %s", res.Amount)

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.True(t, order.StockCommitted)
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("45.00")))
	assert.True(t, order.TaxAmount.Equal(decimal.RequireFromString("3.60")))
	assert.True(t, order.ShippingCost.Equal(decimal.RequireFromString("5.00")))
	require.Len(t, order.Items, 2)
	lineSum := decimal.Zero
	for _, line := range order.Items {
		assert.True(t, line.TotalPrice.Equal(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))))
		lineSum = lineSum.Add(line.TotalPrice)
	}
	assert.True(t, lineSum.Equal(order.Subtotal))
	assert.Equal(t, models.GatewayPaymentPending, order.Payment.Status)
	assert.True(t, order.Payment.Amount.Equal(order.TotalAmount))

	// Stock committed and cart cleared in the same transaction.
	assert.Equal(t, 3, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 0, stockOf(t, db, sh.ProductB))
	assert.EqualValues(t, 0, cartItemCount(t, db, sh.CartID))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	svc := newCheckoutService(db, nil, gateway.NewCODGateway())

	// Second unit of a product with only one left.
	require.NoError(t, db.Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ?", sh.CartID, sh.ProductB).
		Update("quantity", 2).Error)

	_, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCOD))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// Nothing persisted, nothing decremented, cart untouched.
	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	assert.EqualValues(t, 0, orders)
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 1, stockOf(t, db, sh.ProductB))
	assert.EqualValues(t, 2, cartItemCount(t, db, sh.CartID))
}

func TestCreateOrderEmptyCart(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	svc := newCheckoutService(db, nil, gateway.NewCODGateway())

	require.NoError(t, db.Where("cart_id = ?", sh.CartID).Delete(&models.CartItem{}).Error)

	_, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCOD))
	assert.ErrorIs(t, err, ErrCartEmpty)
}

func TestCreateOrderUnknownAddress(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	svc := newCheckoutService(db, nil, gateway.NewCODGateway())

	req := sh.createRequest(models.PaymentMethodCOD)
	req.ShippingAddressID = 999

	_, err := svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrAddressNotFound)
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
}

func TestCreateOrderDeferredLeavesStockAlone(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	notifier := &fakeNotifier{}
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, notifier, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)
	assert.NotEmpty(t, res.GatewayOrderID)
	assert.Equal(t, "https://pay.example.test/approve", res.ApprovalURL)
	assert.False(t, res.Reused)

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.False(t, order.StockCommitted)
	assert.Equal(t, res.GatewayOrderID, order.Payment.GatewayOrderID)
	assert.Equal(t, "https://pay.example.test/approve", order.Payment.ApprovalURL)

	// Stock and cart stay untouched until settlement.
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 1, stockOf(t, db, sh.ProductB))
	assert.EqualValues(t, 2, cartItemCount(t, db, sh.CartID))

	require.Len(t, notifier.checks, 1)
	assert.Equal(t, res.OrderID, notifier.checks[0])
}

func TestCreateOrderReusesPendingOrderWithinWindow(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	fake.statusRes = gateway.StatusOpen
	svc := newCheckoutService(db, nil, fake)

	first, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	second, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.GatewayOrderID, second.GatewayOrderID)
	assert.Equal(t, 1, fake.createCalls)
}

func TestCreateOrderNoReuseWhenRemoteOrderClosed(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	fake.statusRes = gateway.StatusFailed
	svc := newCheckoutService(db, nil, fake)

	first, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	second, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)
	assert.False(t, second.Reused)
	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.Equal(t, 2, fake.createCalls)
}

func TestConfirmCardPaymentSettles(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	fake.confirmRes = gateway.ConfirmResult{
		Status:        gateway.StatusSucceeded,
		CorrelationID: "pi_settled",
		Raw:           `{"status":"succeeded"}`,
	}
	confirm, err := svc.ConfirmCardPayment(context.Background(), res.OrderID, "pm_card_visa", sh.UserID)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusSucceeded, confirm.Status)

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.True(t, order.StockCommitted)
	assert.Equal(t, models.GatewayPaymentSucceeded, order.Payment.Status)
	assert.Equal(t, "pi_settled", order.Payment.TransactionID)

	// Settlement commits stock and clears the cart.
	assert.Equal(t, 3, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 0, stockOf(t, db, sh.ProductB))
	assert.EqualValues(t, 0, cartItemCount(t, db, sh.CartID))

	// A paid order cannot be confirmed again.
	_, err = svc.ConfirmCardPayment(context.Background(), res.OrderID, "pm_card_visa", sh.UserID)
	assert.ErrorIs(t, err, ErrPaymentProcessed)
}

func TestConfirmCardPaymentRequiresAction(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	fake.confirmRes = gateway.ConfirmResult{
		Status:        gateway.StatusRequiresAction,
		CorrelationID: "pi_stepup",
		Continuation:  "pi_stepup_secret",
	}
	confirm, err := svc.ConfirmCardPayment(context.Background(), res.OrderID, "pm_card_3ds", sh.UserID)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusRequiresAction, confirm.Status)
	assert.Equal(t, "pi_stepup_secret", confirm.Continuation)

	// Nothing settled yet.
	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))

	// The shopper finishes authentication; completion re-reads the intent.
	fake.confirmRes = gateway.ConfirmResult{Status: gateway.StatusSucceeded, CorrelationID: "pi_stepup"}
	complete, err := svc.CompleteCardPayment(context.Background(), res.OrderID, sh.UserID)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusSucceeded, complete.Status)

	order = loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, 3, stockOf(t, db, sh.ProductA))
}

func TestConfirmCardPaymentWrongMethod(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	svc := newCheckoutService(db, nil, gateway.NewCODGateway(), newFakeGateway(models.PaymentMethodCard))

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCOD))
	require.NoError(t, err)

	_, err = svc.ConfirmCardPayment(context.Background(), res.OrderID, "pm_card_visa", sh.UserID)
	assert.ErrorIs(t, err, ErrWrongPaymentMethod)
}

func TestSettleIsIdempotent(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	capture := &gateway.CaptureResult{Status: gateway.StatusSucceeded, CaptureID: "cap_once"}
	require.NoError(t, svc.Settle(res.OrderID, capture))
	require.ErrorIs(t, svc.Settle(res.OrderID, capture), ErrAlreadySettled)

	// Stock decremented exactly once.
	assert.Equal(t, 3, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 0, stockOf(t, db, sh.ProductB))
}

func TestHandleWebhookSettlesOnce(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	fake.verifyOK = true
	fake.event = &gateway.WebhookEvent{
		Kind:      gateway.WebhookCaptureCompleted,
		OrderID:   res.OrderID,
		CaptureID: "cap_hook",
	}
	body := []byte(`{"type":"capture.completed"}`)

	require.NoError(t, svc.HandleWebhook(context.Background(), models.PaymentMethodCard, http.Header{}, body))
	// At-least-once delivery: the replay is a no-op.
	require.NoError(t, svc.HandleWebhook(context.Background(), models.PaymentMethodCard, http.Header{}, body))

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "cap_hook", order.Payment.TransactionID)
	assert.Equal(t, 3, stockOf(t, db, sh.ProductA))
}

func TestHandleWebhookResolvesOrderByCorrelationID(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodWallet)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodWallet))
	require.NoError(t, err)

	fake.verifyOK = true
	fake.event = &gateway.WebhookEvent{
		Kind:          gateway.WebhookCaptureCompleted,
		CorrelationID: res.GatewayOrderID,
		CaptureID:     "cap_by_corr",
	}
	require.NoError(t, svc.HandleWebhook(context.Background(), models.PaymentMethodWallet, http.Header{}, []byte(`{}`)))

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
}

func TestHandleWebhookBadSignature(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	fake.verifyOK = false
	err = svc.HandleWebhook(context.Background(), models.PaymentMethodCard, http.Header{}, []byte(`{}`))
	assert.ErrorIs(t, err, ErrBadSignature)

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestHandleWebhookCaptureFailed(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	fake.verifyOK = true
	fake.event = &gateway.WebhookEvent{Kind: gateway.WebhookCaptureFailed, OrderID: res.OrderID}
	require.NoError(t, svc.HandleWebhook(context.Background(), models.PaymentMethodCard, http.Header{}, []byte(`{}`)))

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, models.GatewayPaymentFailed, order.Payment.Status)
	// The order itself stays pending for a retry with another method.
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
}

func TestCaptureWalletPaymentSettles(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodWallet)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodWallet))
	require.NoError(t, err)

	fake.captureRes = gateway.CaptureResult{
		Status:    gateway.StatusSucceeded,
		CaptureID: "wallet_cap_1",
		Amount:    res.Amount,
	}
	capture, err := svc.CaptureWalletPayment(context.Background(), res.OrderID, res.GatewayOrderID, sh.UserID)
	require.NoError(t, err)
	assert.Equal(t, "wallet_cap_1", capture.TransactionID)

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, "wallet_cap_1", order.Payment.TransactionID)
	assert.Equal(t, 3, stockOf(t, db, sh.ProductA))
}

func TestCaptureWalletPaymentFailure(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodWallet)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodWallet))
	require.NoError(t, err)

	fake.captureErr = fmt.Errorf("%w: capture declined", gateway.ErrGateway)
	_, err = svc.CaptureWalletPayment(context.Background(), res.OrderID, res.GatewayOrderID, sh.UserID)
	require.ErrorIs(t, err, gateway.ErrGateway)

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, "system", order.CancelledBy)
	assert.Equal(t, models.GatewayPaymentFailed, order.Payment.Status)
	// Stock was never committed on the deferred path.
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
}

func TestCaptureWalletPaymentOrderMismatch(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodWallet)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodWallet))
	require.NoError(t, err)

	_, err = svc.CaptureWalletPayment(context.Background(), res.OrderID, "someone_elses_order", sh.UserID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, 0, fake.captureCalls)
}

func TestCancelOrderReleasesStockOnce(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	notifier := &fakeNotifier{}
	svc := newCheckoutService(db, notifier, gateway.NewCODGateway())

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCOD))
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, db, sh.ProductA))

	cancelled, err := svc.CancelOrder(CancelRequest{
		OrderID: res.OrderID, UserID: sh.UserID, Reason: "changed my mind",
	})
	require.NoError(t, err)
	assert.Equal(t, "customer", cancelled.CancelledBy)

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.NotNil(t, order.CancelledAt)
	assert.False(t, order.StockCommitted)
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 1, stockOf(t, db, sh.ProductB))

	// Cancelled is terminal; a second cancel must not release stock again.
	_, err = svc.CancelOrder(CancelRequest{OrderID: res.OrderID, UserID: sh.UserID, Reason: "again"})
	assert.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))

	assert.Contains(t, notifier.statuses, models.OrderStatusCancelled)
}

func TestCancelPendingGatewayOrderReleasesNothing(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	_, err = svc.CancelOrder(CancelRequest{OrderID: res.OrderID, UserID: sh.UserID, Reason: "abandoned"})
	require.NoError(t, err)

	// No stock was ever reserved, so the release is a no-op.
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 1, stockOf(t, db, sh.ProductB))
}

func TestSettleAfterCancelIsNoOp(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	_, err = svc.CancelOrder(CancelRequest{OrderID: res.OrderID, UserID: sh.UserID, Reason: "abandoned"})
	require.NoError(t, err)

	// A capture that completed remotely while the cancel was committing must
	// not bring the order back.
	err = svc.Settle(res.OrderID, &gateway.CaptureResult{Status: gateway.StatusSucceeded, CaptureID: "cap_late"})
	require.ErrorIs(t, err, ErrAlreadySettled)

	// Same for the webhook path, which swallows the no-op.
	fake.verifyOK = true
	fake.event = &gateway.WebhookEvent{
		Kind:      gateway.WebhookCaptureCompleted,
		OrderID:   res.OrderID,
		CaptureID: "cap_late",
	}
	require.NoError(t, svc.HandleWebhook(context.Background(), models.PaymentMethodCard, http.Header{}, []byte(`{}`)))

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.False(t, order.StockCommitted)
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 1, stockOf(t, db, sh.ProductB))
}

func TestCancelFailsPendingPaymentAndBlocksReuse(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	fake.statusRes = gateway.StatusOpen
	svc := newCheckoutService(db, nil, fake)

	first, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(CancelRequest{OrderID: first.OrderID, UserID: sh.UserID, Reason: "changed mind"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, cancelled.PaymentStatus)

	order := loadOrder(t, db, first.OrderID)
	assert.Equal(t, models.GatewayPaymentFailed, order.Payment.Status)

	// The cancelled order no longer matches the dedupe window even though
	// its remote order is still open.
	second, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)
	assert.False(t, second.Reused)
	assert.NotEqual(t, first.OrderID, second.OrderID)
}

func TestReleaseOrderStockGatedOnCommitFlag(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	svc := newCheckoutService(db, nil, gateway.NewCODGateway())

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCOD))
	require.NoError(t, err)
	require.Equal(t, 3, stockOf(t, db, sh.ProductA))

	// Two compensation paths holding their own snapshot of the order, the
	// way a user cancel and an admin cancel race: only the one that flips
	// the commitment flag releases.
	first := loadOrder(t, db, res.OrderID)
	stale := loadOrder(t, db, res.OrderID)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.releaseOrderStock(tx, first)
	}))
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 1, stockOf(t, db, sh.ProductB))

	require.True(t, stale.StockCommitted)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.releaseOrderStock(tx, stale)
	}))
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 1, stockOf(t, db, sh.ProductB))
}

func TestCancelOrderScopedToOwner(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	svc := newCheckoutService(db, nil, gateway.NewCODGateway())

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCOD))
	require.NoError(t, err)

	_, err = svc.CancelOrder(CancelRequest{OrderID: res.OrderID, UserID: "intruder", Reason: "nope"})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	// Admins bypass the ownership scope.
	cancelled, err := svc.CancelOrder(CancelRequest{OrderID: res.OrderID, Admin: true, Reason: "fraud review"})
	require.NoError(t, err)
	assert.Equal(t, "admin", cancelled.CancelledBy)
}

func TestUpdateOrderStatusFulfilmentFlow(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	svc := newCheckoutService(db, nil, gateway.NewCODGateway())

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCOD))
	require.NoError(t, err)

	// Pending orders cannot jump straight to shipped.
	_, err = svc.UpdateOrderStatus(res.OrderID, models.OrderStatusShipped)
	require.ErrorIs(t, err, ErrInvalidTransition)

	for _, next := range []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	} {
		_, err = svc.UpdateOrderStatus(res.OrderID, next)
		require.NoError(t, err, "transition to %s", next)
	}

	// Delivery settles the cash-on-delivery payment.
	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, models.GatewayPaymentSucceeded, order.Payment.Status)

	_, err = svc.UpdateOrderStatus(res.OrderID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateOrderStatusCancelReleasesStock(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	svc := newCheckoutService(db, nil, gateway.NewCODGateway())

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCOD))
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(res.OrderID, models.OrderStatusCancelled)
	require.NoError(t, err)

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, "admin", order.CancelledBy)
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
}

func TestRefundDeliveredOrder(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	fake.refundID = "re_123"
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)
	require.NoError(t, svc.Settle(res.OrderID, &gateway.CaptureResult{CaptureID: "cap_ref"}))

	for _, next := range []models.OrderStatus{
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	} {
		_, err = svc.UpdateOrderStatus(res.OrderID, next)
		require.NoError(t, err)
	}

	refunded, err := svc.RefundPayment(context.Background(), res.OrderID, "damaged on arrival")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, refunded.Status)
	assert.Equal(t, 1, fake.refundCalls)

	order := loadOrder(t, db, res.OrderID)
	assert.Equal(t, models.PaymentStatusRefunded, order.PaymentStatus)
	assert.Equal(t, models.GatewayPaymentRefunded, order.Payment.Status)
	assert.Equal(t, "re_123", order.Payment.RefundID)
	assert.True(t, order.Payment.RefundedAmount.Equal(order.TotalAmount))
	// Refund returns the goods to stock.
	assert.Equal(t, 5, stockOf(t, db, sh.ProductA))
	assert.Equal(t, 1, stockOf(t, db, sh.ProductB))

	// Refunded is terminal.
	_, err = svc.RefundPayment(context.Background(), res.OrderID, "again")
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestRefundRequiresDeliveredPaidOrder(t *testing.T) {
	db := newCheckoutDB(t)
	sh := seedShopper(t, db)
	fake := newFakeGateway(models.PaymentMethodCard)
	svc := newCheckoutService(db, nil, fake)

	res, err := svc.CreateOrder(context.Background(), sh.createRequest(models.PaymentMethodCard))
	require.NoError(t, err)

	_, err = svc.RefundPayment(context.Background(), res.OrderID, "too soon")
	assert.ErrorIs(t, err, ErrNotRefundable)
	assert.Equal(t, 0, fake.refundCalls)
}
