package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/apexlab/apex-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	AthleteHandler *handlers.AthleteHandler
	ValdHandler    *handlers.ValdHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware(cfg.ServiceName))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Athletes
		api.POST("/athletes", cfg.AthleteHandler.Create)
		api.GET("/athletes/:id", cfg.AthleteHandler.GetByID)

		// Identity resolution
		api.POST("/athletes/:id/vald/resolve", cfg.ValdHandler.ResolveProfile)
		api.POST("/athletes/:id/vald/link", cfg.ValdHandler.LinkExisting)
		api.GET("/vald/profiles/search", cfg.ValdHandler.SearchProfiles)

		// Percentiles
		api.POST("/vald/tests", cfg.ValdHandler.IngestTest)
		api.GET("/athletes/:id/percentiles", cfg.ValdHandler.PercentileHistory)
		api.POST("/athletes/:id/percentiles/recalculate", cfg.ValdHandler.Recalculate)
		api.POST("/athletes/:id/vald/composite", cfg.ValdHandler.UpdateComposite)

		// Queue
		api.POST("/vald/queue/sweep", cfg.ValdHandler.SweepQueue)
		api.GET("/vald/queue", cfg.ValdHandler.ListQueue)
	}

	return router
}
