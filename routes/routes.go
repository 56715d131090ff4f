package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/EasyLink2023/liquiKart-perfume-backend/checkout"
)

// SetupRoutes is the single entry-point that wires up the cart, order, and
// payment route groups.
func SetupRoutes(r *gin.Engine, svc *checkout.Service) {
	SetupProductRoutes(r, svc)
	SetupCartRoutes(r, svc)
	SetupOrderRoutes(r, svc)
	SetupPaymentRoutes(r, svc)
}
