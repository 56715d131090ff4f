package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/EasyLink2023/liquiKart-perfume-backend/checkout"
	"github.com/EasyLink2023/liquiKart-perfume-backend/config"
	"github.com/EasyLink2023/liquiKart-perfume-backend/gateway"
	"github.com/EasyLink2023/liquiKart-perfume-backend/middleware"
	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
	"github.com/EasyLink2023/liquiKart-perfume-backend/notify"
	"github.com/EasyLink2023/liquiKart-perfume-backend/routes"
)

func main() {
	log.Println("✅ Starting application...")

	cfg := config.Load()

	// Init DB
	db := initDatabase(cfg)

	// Auto-migrate all tables
	if err := db.AutoMigrate(
		&models.User{},
		&models.Address{},
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	); err != nil {
		log.Fatalf("❌ AutoMigrate failed: %v", err)
	}

	// Payment gateways
	gateways := gateway.NewRegistry(
		gateway.NewCODGateway(),
		gateway.NewCardGateway(gateway.CardConfig{
			APIURL:        cfg.CardAPIURL,
			SecretKey:     cfg.CardSecretKey,
			WebhookSecret: cfg.CardWebhookSecret,
		}),
		gateway.NewWalletGateway(gateway.WalletConfig{
			BaseURL:      cfg.WalletBaseURL,
			ClientID:     cfg.WalletClientID,
			ClientSecret: cfg.WalletClientSecret,
			WebhookID:    cfg.WalletWebhookID,
			StoreName:    cfg.StoreName,
			ReturnURL:    cfg.WalletReturnURL,
			CancelURL:    cfg.WalletCancelURL,
			Currency:     cfg.Currency,
		}),
	)

	// Order event publisher, optional when no broker is configured
	var notifier checkout.Notifier
	if cfg.RabbitMQURL != "" {
		publisher, err := notify.New(notify.Config{
			URL:           cfg.RabbitMQURL,
			OrderExchange: cfg.OrderExchange,
			OrderQueue:    cfg.OrderQueue,
			DelayExchange: cfg.DelayExchange,
		})
		if err != nil {
			log.Printf("⚠️ RabbitMQ unavailable, order events disabled: %v", err)
		} else {
			defer publisher.Close()
			notifier = publisher
		}
	}

	svc := checkout.New(db, gateways, notifier, checkout.Config{
		Currency:     cfg.Currency,
		TaxRate:      cfg.TaxRate,
		ShippingFlat: cfg.ShippingFlat,
		DedupeWindow: cfg.DedupeWindow,
	})

	// Gin setup
	r := gin.Default()

	// CORS settings
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup routes
	routes.SetupRoutes(r, svc)

	// Start server
	log.Printf("🚀 Server running on port %s...", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// initDatabase sets up the GORM DB connection
func initDatabase(cfg *config.Config) *gorm.DB {
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			log.Fatalf("❌ DB connection failed: %v", err)
		}
		return db
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("❌ Failed to connect DB: %v", err)
	}
	return db
}
