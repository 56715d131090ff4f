package productControllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
	"github.com/EasyLink2023/liquiKart-perfume-backend/utils"
)

// GET /products
// Storefront listing: active products only, with search, price range and
// sorting filters.
func GetProducts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		search := c.Query("search")
		minPriceStr := c.Query("min_price")
		maxPriceStr := c.Query("max_price")
		sortBy := c.DefaultQuery("sort_by", "created_at")
		sortOrder := strings.ToLower(c.DefaultQuery("order", "desc"))
		if sortOrder != "asc" && sortOrder != "desc" {
			sortOrder = "desc"
		}
		switch sortBy {
		case "created_at", "price", "name":
		default:
			sortBy = "created_at"
		}

		query := db.Model(&models.Product{}).Where("status = ?", models.ProductStatusActive)

		if search != "" {
			likePattern := "%" + search + "%"
			query = query.Where("name LIKE ? OR description LIKE ? OR sku LIKE ?",
				likePattern, likePattern, likePattern)
		}
		if minPriceStr != "" {
			if mp, err := decimal.NewFromString(minPriceStr); err == nil {
				query = query.Where("price >= ?", mp)
			} else {
				utils.Error(c, http.StatusBadRequest, "Invalid min_price")
				return
			}
		}
		if maxPriceStr != "" {
			if mp, err := decimal.NewFromString(maxPriceStr); err == nil {
				query = query.Where("price <= ?", mp)
			} else {
				utils.Error(c, http.StatusBadRequest, "Invalid max_price")
				return
			}
		}

		var products []models.Product
		if err := query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder)).Find(&products).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to fetch products")
			return
		}
		utils.Success(c, http.StatusOK, "Products fetched", products)
	}
}

// GET /products/:id
func GetProductByID(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid product ID")
			return
		}

		var product models.Product
		if err := db.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Error(c, http.StatusNotFound, "Product not found")
			} else {
				utils.Error(c, http.StatusInternalServerError, "Failed to retrieve product")
			}
			return
		}
		utils.Success(c, http.StatusOK, "Product fetched", product)
	}
}

type ProductInput struct {
	Name        string          `json:"name" binding:"required"`
	SKU         string          `json:"sku" binding:"required"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	OnlinePrice decimal.Decimal `json:"online_price"`
	Quantity    int             `json:"quantity"`
}

// POST /products (admin)
func CreateProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input ProductInput
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}

		status := models.ProductStatusActive
		if input.Status == string(models.ProductStatusInactive) {
			status = models.ProductStatusInactive
		}

		product := models.Product{
			Name:        input.Name,
			SKU:         input.SKU,
			Description: input.Description,
			Status:      status,
			Price:       input.Price,
			OnlinePrice: input.OnlinePrice,
			Quantity:    input.Quantity,
		}
		if err := db.Create(&product).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to create product")
			return
		}
		utils.Success(c, http.StatusCreated, "Product created", product)
	}
}

// PUT /products/:id (admin)
func UpdateProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid product ID")
			return
		}

		var product models.Product
		if err := db.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Error(c, http.StatusNotFound, "Product not found")
			} else {
				utils.Error(c, http.StatusInternalServerError, "Failed to retrieve product")
			}
			return
		}

		var input ProductInput
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}

		product.Name = input.Name
		product.SKU = input.SKU
		product.Description = input.Description
		product.Price = input.Price
		product.OnlinePrice = input.OnlinePrice
		product.Quantity = input.Quantity
		if input.Status != "" {
			if input.Status != string(models.ProductStatusActive) && input.Status != string(models.ProductStatusInactive) {
				utils.Error(c, http.StatusBadRequest, "Invalid status")
				return
			}
			product.Status = models.ProductStatus(input.Status)
		}

		if err := db.Save(&product).Error; err != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to update product")
			return
		}
		utils.Success(c, http.StatusOK, "Product fetched", product)
	}
}

// DELETE /products/:id (admin, soft delete)
func DeleteProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid product ID")
			return
		}

		result := db.Delete(&models.Product{}, id)
		if result.Error != nil {
			utils.Error(c, http.StatusInternalServerError, "Failed to delete product")
			return
		}
		if result.RowsAffected == 0 {
			utils.Error(c, http.StatusNotFound, "Product not found")
			return
		}
		utils.Success(c, http.StatusOK, "Product deleted", nil)
	}
}
