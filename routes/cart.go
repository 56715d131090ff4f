package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/EasyLink2023/liquiKart-perfume-backend/checkout"
	cartControllers "github.com/EasyLink2023/liquiKart-perfume-backend/controllers/cart"
	"github.com/EasyLink2023/liquiKart-perfume-backend/middleware"
)

func SetupCartRoutes(r *gin.Engine, svc *checkout.Service) {
	db := svc.DB()

	cart := r.Group("/cart", middleware.ValidateToken)
	{
		cart.GET("/", cartControllers.GetUserCart(db))
		cart.POST("/items", cartControllers.UpdateCartItem(db))
		cart.DELETE("/items/:product_id", cartControllers.DeleteCartItem(db))
		cart.DELETE("/", cartControllers.ClearUserCart(db))
	}
}
