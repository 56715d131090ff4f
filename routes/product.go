package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/EasyLink2023/liquiKart-perfume-backend/checkout"
	productControllers "github.com/EasyLink2023/liquiKart-perfume-backend/controllers/product"
	"github.com/EasyLink2023/liquiKart-perfume-backend/middleware"
)

func SetupProductRoutes(r *gin.Engine, svc *checkout.Service) {
	db := svc.DB()

	products := r.Group("/products")
	{
		products.GET("/", productControllers.GetProducts(db))
		products.GET("/:id", productControllers.GetProductByID(db))

		admin := products.Group("", middleware.ValidateToken, middleware.RequireAdmin)
		{
			admin.POST("/", productControllers.CreateProduct(db))
			admin.PUT("/:id", productControllers.UpdateProduct(db))
			admin.DELETE("/:id", productControllers.DeleteProduct(db))
		}
	}
}
