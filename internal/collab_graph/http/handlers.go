package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/service"
)

const maxSessionIDLength = 128

// ServeSession upgrades the request to a websocket and relays the
// collaborator's protocol messages until it disconnects
func (h *Handler) ServeSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Debug("websocket upgrade failed", zap.String("session", sessionID), zap.Error(err))
		return
	}

	if err := h.relay.Serve(c.Request.Context(), sessionID, ws); err != nil {
		h.logger.Warn("relay session ended with error", zap.String("session", sessionID), zap.Error(err))
	}
}

// GetRoster returns the stored roster of a session
func (h *Handler) GetRoster(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	users, err := h.relay.Roster(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("roster lookup failed", zap.String("session", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get roster"})
		return
	}

	active := 0
	for _, u := range users {
		if u.Active {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":  sessionID,
		"users":       users,
		"active":      active,
		"connections": h.relay.Connections(sessionID),
	})
}

// RunLayout runs a force layout on the posted graph and returns positions
func (h *Handler) RunLayout(c *gin.Context) {
	var req service.LayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := h.layout.Run(c.Request.Context(), req)
	if err != nil {
		var integrity *domain.GraphIntegrityError
		switch {
		case errors.As(err, &integrity):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "violations": integrity.Violations})
		case errors.Is(err, service.ErrGraphTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "layout cancelled"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if id == "" || len(id) > maxSessionIDLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return "", false
	}
	return id, true
}
