package cartControllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
	"github.com/EasyLink2023/liquiKart-perfume-backend/utils"
)

type CartItemInput struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

// loadOrCreateCart returns the user's cart, creating the row lazily on
// first use. One cart per user, enforced by the unique index on user_id.
func loadOrCreateCart(db *gorm.DB, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := db.Where("user_id = ?", userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cart = models.Cart{UserID: userID}
		err = db.Create(&cart).Error
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// POST /cart/items
func UpdateCartItem(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDVal, exists := c.Get("user_id")
		if !exists {
			utils.Error(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		userID := userIDVal.(string)

		var input CartItemInput
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}

		var product models.Product
		if err := db.First(&product, "id = ?", input.ProductID).Error; err != nil {
			status := http.StatusInternalServerError
			errMsg := "Failed to validate product"
			if errors.Is(err, gorm.ErrRecordNotFound) {
				status = http.StatusBadRequest
				errMsg = "Product does not exist"
			}
			utils.Error(c, status, errMsg)
			return
		}
		if product.Status != models.ProductStatusActive {
			utils.Error(c, http.StatusBadRequest, "Product is not available")
			return
		}

		cart, err := loadOrCreateCart(db, userID)
		if err != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to load cart")
			return
		}

		var item models.CartItem
		err = db.Where("cart_id = ? AND product_id = ?", cart.CartID, input.ProductID).First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				newItem := models.CartItem{
					CartID:    cart.CartID,
					ProductID: product.ID,
					Quantity:  input.Quantity,
					AddedAt:   time.Now(),
				}
				if err := db.Create(&newItem).Error; err != nil {
					utils.Error(c, http.StatusInternalServerError, "Failed to add item to cart")
					return
				}
				utils.Success(c, http.StatusCreated, "Item added to cart", newItem)
				return
			}
			utils.Error(c, http.StatusInternalServerError, "Failed to fetch cart item")
			return
		}

		item.Quantity = input.Quantity
		item.AddedAt = time.Now()
		if err := db.Save(&item).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to update cart item")
			return
		}
		utils.Success(c, http.StatusOK, "Cart item updated", item)
	}
}

// DELETE /cart/items/:product_id
func DeleteCartItem(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDVal, exists := c.Get("user_id")
		if !exists {
			utils.Error(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		userID := userIDVal.(string)

		productID, err := strconv.ParseUint(c.Param("product_id"), 10, 64)
		if err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid product id")
			return
		}

		var cart models.Cart
		if err := db.Where("user_id = ?", userID).First(&cart).Error; err != nil {
			utils.Error(c, http.StatusNotFound, "User cart not found")
			return
		}

		result := db.Where("cart_id = ? AND product_id = ?", cart.CartID, productID).Delete(&models.CartItem{})
		if result.Error != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to delete item")
			return
		}
		if result.RowsAffected == 0 {
			utils.Error(c, http.StatusNotFound, "Cart item not found")
			return
		}
		utils.Success(c, http.StatusOK, "Cart item deleted", nil)
	}
}

// DELETE /cart
func ClearUserCart(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDVal, exists := c.Get("user_id")
		if !exists {
			utils.Error(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		userID := userIDVal.(string)

		var cart models.Cart
		if err := db.Where("user_id = ?", userID).First(&cart).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Success(c, http.StatusOK, "Cart cleared", nil)
				return
			}
			utils.Error(c, http.StatusInternalServerError, "Failed to fetch user cart")
			return
		}

		if err := db.Where("cart_id = ?", cart.CartID).Delete(&models.CartItem{}).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to clear cart")
			return
		}
		utils.Success(c, http.StatusOK, "Cart cleared", nil)
	}
}

// GET /cart
func GetUserCart(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDVal, exists := c.Get("user_id")
		if !exists {
			utils.Error(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		userID := userIDVal.(string)

		cart, err := loadOrCreateCart(db, userID)
		if err != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to fetch cart")
			return
		}
		var items []models.CartItem
		if err := db.Where("cart_id = ?", cart.CartID).Find(&items).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to fetch cart")
			return
		}
		utils.Success(c, http.StatusOK, "Cart fetched", gin.H{"cart_id": cart.CartID, "items": items})
	}
}
