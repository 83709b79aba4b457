package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mycelium-customer-ledger/internal/api_gateway/handler"
	"github.com/mycelium-customer-ledger/internal/api_gateway/middleware"
)

const healthPath = "/health"

// handlers groups every handler the router mounts
type handlers struct {
	ledger         *handler.LedgerHandler
	debtors        *handler.DebtorHandler
	history        *handler.HistoryHandler
	reconciliation *handler.ReconciliationHandler
}

// corsConfig lets the ledger UI call the API from the configured origins
func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = allowedOrigins
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", middleware.CorrelationIDHeader}
	cfg.ExposeHeaders = []string{middleware.CorrelationIDHeader, "Retry-After"}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, allowedOrigins []string, h handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger, healthPath))
	if len(allowedOrigins) > 0 {
		r.Use(cors.New(corsConfig(allowedOrigins)))
	}

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Per-customer ledger
		customers := v1.Group("/customers/:customer_id/ledger")
		{
			customers.GET("", h.ledger.GetLedger)
			customers.POST("", h.ledger.Create)
			customers.GET("/history", h.history.List)
			customers.GET("/verify", h.reconciliation.Verify)
		}

		// Entry operations
		entries := v1.Group("/ledger/entries")
		{
			entries.PUT("/:entry_id", h.ledger.Update)
			entries.DELETE("/:entry_id", h.ledger.Delete)
		}

		v1.GET("/debtors", h.debtors.List)
	}

	// Health check endpoint for monitoring
	r.GET(healthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
