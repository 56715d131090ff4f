package paymentControllers

import (
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/EasyLink2023/liquiKart-perfume-backend/checkout"
	"github.com/EasyLink2023/liquiKart-perfume-backend/middleware"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
	"github.com/EasyLink2023/liquiKart-perfume-backend/utils"
)

type ConfirmCardRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
}

type CaptureWalletRequest struct {
	GatewayOrderID string `json:"gateway_order_id"`
}

type RefundRequest struct {
	Reason string `json:"reason"`
}

func currentUser(c *gin.Context) (string, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		utils.Error(c, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userIDVal.(string), true
}

func orderIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("orderID"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid order id")
		return 0, false
	}
	return uint(id), true
}

// POST /payments/card/:orderID/confirm
// Attaches the shopper's card to the pending payment and confirms it.
// A requires_action reply carries the continuation secret the frontend
// feeds to the card SDK for the 3DS challenge.
func ConfirmCardHandler(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}
		var req ConfirmCardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}

		result, err := svc.ConfirmCardPayment(c.Request.Context(), orderID, req.PaymentMethodID, userID)
		middleware.RecordCheckoutOperation("confirm_card", err == nil)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.Success(c, http.StatusOK, "Payment confirmed", result)
	}
}

// POST /payments/card/:orderID/complete
// Called after the shopper finishes a 3DS challenge; re-checks the intent
// and settles when the gateway reports success.
func CompleteCardHandler(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}

		result, err := svc.CompleteCardPayment(c.Request.Context(), orderID, userID)
		middleware.RecordCheckoutOperation("complete_card", err == nil)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.Success(c, http.StatusOK, "Payment completed", result)
	}
}

// POST /payments/wallet/:orderID/capture
// Called when the shopper returns from the wallet approval redirect.
func CaptureWalletHandler(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}
		var req CaptureWalletRequest
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			utils.Error(c, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}

		result, err := svc.CaptureWalletPayment(c.Request.Context(), orderID, req.GatewayOrderID, userID)
		middleware.RecordCheckoutOperation("capture_wallet", err == nil)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.Success(c, http.StatusOK, "Payment captured", result)
	}
}

// POST /payments/wallet/:orderID/refund (admin)
func RefundHandler(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}
		var req RefundRequest
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			utils.Error(c, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}

		order, err := svc.RefundPayment(c.Request.Context(), orderID, req.Reason)
		middleware.RecordCheckoutOperation("refund", err == nil)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.Success(c, http.StatusOK, "Payment refunded", order)
	}
}

// webhookHandler answers 200 regardless of processing outcome so the
// provider stops retrying; failures are logged server-side and the event
// redelivers or is replayed by hand.
func webhookHandler(svc *checkout.Service, method models.PaymentMethod) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			utils.Success(c, http.StatusOK, "received", nil)
			return
		}

		err = svc.HandleWebhook(c.Request.Context(), method, c.Request.Header, body)
		middleware.RecordCheckoutOperation("webhook_"+string(method), err == nil)
		if err != nil {
			// 200 anyway; the provider retries on its own schedule.
			log.Printf("webhook %s: %v", method, err)
			utils.Success(c, http.StatusOK, "received", gin.H{"processed": false})
			return
		}
		utils.Success(c, http.StatusOK, "received", nil)
	}
}

// POST /payments/card/webhook
func CardWebhookHandler(svc *checkout.Service) gin.HandlerFunc {
	return webhookHandler(svc, models.PaymentMethodCard)
}

// POST /payments/wallet/webhook
func WalletWebhookHandler(svc *checkout.Service) gin.HandlerFunc {
	return webhookHandler(svc, models.PaymentMethodWallet)
}
