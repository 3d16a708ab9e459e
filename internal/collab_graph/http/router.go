package http

import "github.com/gin-gonic/gin"

// Register registers the collaboration routes
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/sessions/:id/ws", h.ServeSession)
	rg.GET("/sessions/:id/roster", h.GetRoster)
	rg.POST("/layout", h.RunLayout)
}
