package orderControllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
	"github.com/EasyLink2023/liquiKart-perfume-backend/utils"
)

// GetOrderStatsHandler returns the admin dashboard aggregates: order counts
// per status, paid revenue, and how many payments are still pending.
func GetOrderStatsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var total int64
		if err := db.Model(&models.Order{}).Count(&total).Error; err != nil {
			utils.RespondError(c, err)
			return
		}

		type statusCount struct {
			Status models.OrderStatus `json:"status"`
			Count  int64              `json:"count"`
		}
		var byStatus []statusCount
		if err := db.Model(&models.Order{}).
			Select("status, COUNT(*) as count").
			Group("status").
			Scan(&byStatus).Error; err != nil {
			utils.RespondError(c, err)
			return
		}

		var revenue decimal.Decimal
		row := db.Model(&models.Order{}).
			Where("payment_status = ?", models.PaymentStatusPaid).
			Select("COALESCE(SUM(total_amount), 0)").
			Row()
		if err := row.Scan(&revenue); err != nil {
			utils.RespondError(c, err)
			return
		}

		var pendingPayments int64
		if err := db.Model(&models.Order{}).
			Where("payment_status = ?", models.PaymentStatusPending).
			Count(&pendingPayments).Error; err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.Success(c, http.StatusOK, "order statistics", gin.H{
			"total_orders":     total,
			"by_status":        byStatus,
			"revenue":          revenue,
			"pending_payments": pendingPayments,
		})
	}
}
