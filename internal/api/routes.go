package api

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API under /api.
func RegisterRoutes(r *gin.Engine, h *Handlers) {
	r.Use(requestLogger(h.logger))
	api := r.Group("/api")
	{
		api.GET("/health", h.health)
		api.POST("/compose", h.compose)
		api.POST("/compose/upload", h.composeUpload)
		api.GET("/stats", h.stats)
		api.GET("/stats/chart", h.statsChart)
		api.GET("/invite", h.invite)
	}
}

// NewEngine returns a gin engine with recovery and the API routes.
func NewEngine(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	RegisterRoutes(r, h)
	return r
}
