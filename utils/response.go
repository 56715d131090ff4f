package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EasyLink2023/liquiKart-perfume-backend/checkout"
	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/inventory"
)

// Success writes the standard response envelope. Data is omitted when nil.
func Success(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// Error writes the standard failure envelope.
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// ErrorStatus maps service errors onto HTTP status codes so the handlers
// share one table instead of each switching on sentinels.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, checkout.ErrCartNotFound),
		errors.Is(err, checkout.ErrAddressNotFound),
		errors.Is(err, checkout.ErrOrderNotFound),
		errors.Is(err, inventory.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrCartEmpty),
		errors.Is(err, checkout.ErrProductUnavailable),
		errors.Is(err, checkout.ErrPaymentProcessed),
		errors.Is(err, checkout.ErrWrongPaymentMethod),
		errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrNotCancellable),
		errors.Is(err, checkout.ErrNotRefundable),
		errors.Is(err, checkout.ErrAlreadySettled),
		errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps a service error to its status and writes the failure
// envelope. Internal errors are masked; sentinels surface their message.
func RespondError(c *gin.Context, err error) {
	status := ErrorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	Error(c, status, message)
}
