package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/roastery/internal/api/handlers"
	"github.com/andresuchdata/roastery/internal/api/middleware"
	"github.com/andresuchdata/roastery/internal/app"
	"github.com/andresuchdata/roastery/internal/catalog"
	"github.com/andresuchdata/roastery/internal/costing"
	"github.com/andresuchdata/roastery/internal/forecast"
	"github.com/andresuchdata/roastery/internal/ledger"
	"github.com/andresuchdata/roastery/internal/production"
	"github.com/andresuchdata/roastery/internal/quality"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Catalog    *catalog.Service
	Ledger     *ledger.Service
	Costing    *costing.Service
	Production *production.Service
	Quality    *quality.Service
	Forecast   *forecast.Engine
}

// ServicesFrom exposes every service of a bootstrapped application.
func ServicesFrom(a *app.App) *Services {
	return &Services{
		Catalog:    a.Catalog,
		Ledger:     a.Ledger,
		Costing:    a.Costing,
		Production: a.Production,
		Quality:    a.Quality,
		Forecast:   a.Forecast,
	}
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	apiGroup := router.Group("/api/v1")

	if services == nil {
		return router
	}

	itemGroup := apiGroup.Group("/items")
	if services.Catalog != nil {
		catalogHandler := handlers.NewCatalogHandler(services.Catalog)
		itemGroup.GET("", catalogHandler.ListItems)
		itemGroup.POST("", catalogHandler.CreateItem)
		itemGroup.GET("/:id", catalogHandler.GetItem)

		recipeGroup := apiGroup.Group("/recipes")
		{
			recipeGroup.POST("", catalogHandler.CreateRecipe)
			recipeGroup.GET("/:id", catalogHandler.GetRecipe)
		}

		batchGroup := apiGroup.Group("/batches")
		{
			batchGroup.GET("", catalogHandler.ListBatches)
			batchGroup.GET("/:id", catalogHandler.GetBatch)
		}
	}

	if services.Ledger != nil && services.Costing != nil {
		ledgerHandler := handlers.NewLedgerHandler(services.Ledger, services.Costing)
		itemGroup.GET("/:id/balance", ledgerHandler.Balance)
		itemGroup.GET("/:id/ledger", ledgerHandler.Query)
		itemGroup.POST("/:id/ledger", ledgerHandler.Post)
		itemGroup.POST("/:id/receipts", ledgerHandler.Receive)
		itemGroup.GET("/:id/cost", ledgerHandler.Quote)
		apiGroup.POST("/ledger/:id/corrections", ledgerHandler.Correct)
	}

	if services.Production != nil {
		productionHandler := handlers.NewProductionHandler(services.Production)
		productionGroup := apiGroup.Group("/production")
		{
			productionGroup.POST("/roasts", productionHandler.Roast)
			productionGroup.POST("/blends", productionHandler.Blend)
		}
	}

	if services.Quality != nil {
		qualityHandler := handlers.NewQualityHandler(services.Quality)
		qualityGroup := apiGroup.Group("/quality")
		{
			qualityGroup.GET("/trend", qualityHandler.Trend)
			qualityGroup.GET("/comparison", qualityHandler.Comparison)
			qualityGroup.GET("/warnings", qualityHandler.Warnings)
			qualityGroup.POST("/warnings/:id/resolve", qualityHandler.Resolve)
		}
	}

	if services.Forecast != nil {
		forecastHandler := handlers.NewForecastHandler(services.Forecast)
		forecastGroup := apiGroup.Group("/forecast")
		{
			forecastGroup.GET("", forecastHandler.Predict)
			forecastGroup.GET("/series", forecastHandler.Series)
			forecastGroup.GET("/seasonal-index", forecastHandler.SeasonalIndex)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
