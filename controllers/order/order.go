package orderControllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/checkout"
	"github.com/EasyLink2023/liquiKart-perfume-backend/middleware"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
	"github.com/EasyLink2023/liquiKart-perfume-backend/utils"
)

type PlaceOrderRequest struct {
	CartID            uint   `json:"cart_id" binding:"required"`
	ShippingAddressID uint   `json:"shipping_address_id" binding:"required"`
	BillingAddressID  uint   `json:"billing_address_id"`
	PaymentMethod     string `json:"payment_method" binding:"required"`
	Notes             string `json:"notes"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes"`
}

func currentUser(c *gin.Context) (string, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		utils.Error(c, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userIDVal.(string), true
}

func isAdmin(c *gin.Context) bool {
	role, _ := c.Get("role")
	return role == "admin"
}

func orderIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("orderID"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid order id")
		return 0, false
	}
	return uint(id), true
}

// POST /orders
// Creates an order from the user's cart. Cash orders commit stock and
// clear the cart right away; gateway orders come back pending with the
// redirect or correlation id the frontend needs to collect payment.
func PlaceOrderHandler(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		var req PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}
		method, err := models.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			utils.Error(c, http.StatusBadRequest, err.Error())
			return
		}

		result, err := svc.CreateOrder(c.Request.Context(), checkout.CreateOrderRequest{
			UserID:            userID,
			CartID:            req.CartID,
			ShippingAddressID: req.ShippingAddressID,
			BillingAddressID:  req.BillingAddressID,
			PaymentMethod:     method,
			Notes:             req.Notes,
		})
		middleware.RecordCheckoutOperation("create_order", err == nil)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		status := http.StatusCreated
		if result.Reused {
			status = http.StatusOK
		}
		utils.Success(c, status, "Order created", result)

		broadcastOrderEvent(svc.DB(), result.OrderID)
	}
}

// GET /orders/user
func GetUserOrdersHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		var orders []models.Order
		if err := db.
			Where("user_id = ?", userID).
			Preload("Items").
			Preload("Payment").
			Order("created_at DESC").
			Find(&orders).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		utils.Success(c, http.StatusOK, "Orders fetched", orders)
	}
}

// GET /orders (admin)
// Supports ?status=, ?payment_status=, ?user_id=, ?page=, ?limit=.
func GetAllOrdersHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if page < 1 {
			page = 1
		}
		if limit < 1 || limit > 100 {
			limit = 20
		}

		q := db.Model(&models.Order{})
		if status := c.Query("status"); status != "" {
			parsed, err := models.ParseOrderStatus(status)
			if err != nil {
				utils.Error(c, http.StatusBadRequest, err.Error())
				return
			}
			q = q.Where("status = ?", parsed)
		}
		if ps := c.Query("payment_status"); ps != "" {
			q = q.Where("payment_status = ?", ps)
		}
		if userID := c.Query("user_id"); userID != "" {
			q = q.Where("user_id = ?", userID)
		}

		var total int64
		if err := q.Count(&total).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, err.Error())
			return
		}

		var orders []models.Order
		if err := q.
			Preload("Items").
			Preload("Payment").
			Order("created_at DESC").
			Offset((page - 1) * limit).
			Limit(limit).
			Find(&orders).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, err.Error())
			return
		}

		utils.Success(c, http.StatusOK, "Orders fetched", gin.H{
			"orders": orders,
			"total":  total,
			"page":   page,
			"limit":  limit,
		})
	}
}

// GET /orders/:orderID (admins can read any order)
func GetOrderByIDHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id := c.Param("orderID")
		if id == "" {
			utils.Error(c, http.StatusBadRequest, "orderID is required")
			return
		}

		// Numeric params look up by primary key, anything else by order
		// number; mixing both in one clause trips Postgres' bigint cast.
		q := db.Preload("Items").Preload("Payment")
		if numeric, err := strconv.ParseUint(id, 10, 64); err == nil {
			q = q.Where("id = ?", numeric)
		} else {
			q = q.Where("order_number = ?", id)
		}
		if !isAdmin(c) {
			q = q.Where("user_id = ?", userID)
		}

		var order models.Order
		if err := q.First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Error(c, http.StatusNotFound, "order not found")
				return
			}
			utils.Error(c, http.StatusInternalServerError, err.Error())
			return
		}
		utils.Success(c, http.StatusOK, "Order fetched", order)
	}
}

// PATCH /orders/:orderID/status (admin)
func UpdateOrderStatusHandler(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}
		var req UpdateOrderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.Error(c, http.StatusBadRequest, err.Error())
			return
		}
		next, err := models.ParseOrderStatus(req.Status)
		if err != nil {
			utils.Error(c, http.StatusBadRequest, err.Error())
			return
		}

		order, err := svc.UpdateOrderStatus(orderID, next)
		middleware.RecordCheckoutOperation("update_status", err == nil)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.Success(c, http.StatusOK, "Order status updated successfully", order)

		broadcastOrderEvent(svc.DB(), order.ID)
	}
}

// PATCH /orders/:orderID/cancel (admins can cancel any order)
func CancelOrderHandler(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}
		var req CancelOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}

		order, err := svc.CancelOrder(checkout.CancelRequest{
			OrderID: orderID,
			UserID:  userID,
			Admin:   isAdmin(c),
			Reason:  req.Reason,
			Notes:   req.Notes,
		})
		middleware.RecordCheckoutOperation("cancel_order", err == nil)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.Success(c, http.StatusOK, "Order cancelled", order)

		broadcastOrderEvent(svc.DB(), order.ID)
	}
}
