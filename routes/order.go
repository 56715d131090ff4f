package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/EasyLink2023/liquiKart-perfume-backend/checkout"
	orderControllers "github.com/EasyLink2023/liquiKart-perfume-backend/controllers/order"
	"github.com/EasyLink2023/liquiKart-perfume-backend/middleware"
)

func SetupOrderRoutes(r *gin.Engine, svc *checkout.Service) {
	db := svc.DB()

	orders := r.Group("/orders", middleware.ValidateToken)
	{
		// Create a new order from the caller's cart
		orders.POST("/", orderControllers.PlaceOrderHandler(svc))

		// Fetch the caller's orders
		orders.GET("/user", orderControllers.GetUserOrdersHandler(db))

		// Fetch a single order (owner or admin)
		orders.GET("/:orderID", orderControllers.GetOrderByIDHandler(db))

		// Cancel an order (owner or admin)
		orders.PATCH("/:orderID/cancel", orderControllers.CancelOrderHandler(svc))

		// Admin: list, export, fulfilment transitions, live updates
		admin := orders.Group("", middleware.RequireAdmin)
		{
			admin.GET("/", orderControllers.GetAllOrdersHandler(db))
			admin.GET("/stats", orderControllers.GetOrderStatsHandler(db))
			admin.GET("/export", orderControllers.ExportOrdersToExcel(db))
			admin.PATCH("/:orderID/status", orderControllers.UpdateOrderStatusHandler(svc))
		}
	}

	// websocket endpoint for real-time order updates
	r.GET("/orders/ws", middleware.ValidateToken, middleware.RequireAdmin, orderControllers.OrderWebSocketHandler)
}
