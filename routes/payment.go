package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/EasyLink2023/liquiKart-perfume-backend/checkout"
	paymentControllers "github.com/EasyLink2023/liquiKart-perfume-backend/controllers/payment"
	"github.com/EasyLink2023/liquiKart-perfume-backend/middleware"
)

func SetupPaymentRoutes(r *gin.Engine, svc *checkout.Service) {
	payments := r.Group("/payments")
	{
		card := payments.Group("/card")
		{
			// Webhook is verified by signature, not by session
			card.POST("/webhook", paymentControllers.CardWebhookHandler(svc))

			auth := card.Group("", middleware.ValidateToken)
			{
				auth.POST("/:orderID/confirm", paymentControllers.ConfirmCardHandler(svc))
				auth.POST("/:orderID/complete", paymentControllers.CompleteCardHandler(svc))
			}
		}

		wallet := payments.Group("/wallet")
		{
			wallet.POST("/webhook", paymentControllers.WalletWebhookHandler(svc))

			auth := wallet.Group("", middleware.ValidateToken)
			{
				auth.POST("/:orderID/capture", paymentControllers.CaptureWalletHandler(svc))
			}

			admin := wallet.Group("", middleware.ValidateToken, middleware.RequireAdmin)
			{
				admin.POST("/:orderID/refund", paymentControllers.RefundHandler(svc))
			}
		}
	}
}
