package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"confgive/internal/interfaces/http/handlers"
)

// GivingRouteConfig holds dependencies for the giving routes.
type GivingRouteConfig struct {
	GivingHandler *handlers.GivingHandler
}

// SetupGivingRoutes configures the giving routes.
func SetupGivingRoutes(engine *gin.Engine, cfg *GivingRouteConfig) {
	engine.POST("/payment", cfg.GivingHandler.Giving)
	engine.POST("/getall", cfg.GivingHandler.GetAll)
	engine.GET("/stats", cfg.GivingHandler.Stats)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
