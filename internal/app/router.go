package app

import (
	"github.com/gin-gonic/gin"

	"github.com/apexlab/apex-backend/internal/server"
)

func wireRouter(cfg Config, h Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.AllowedOrigins,
		AthleteHandler: h.Athlete,
		ValdHandler:    h.Vald,
	})
}
