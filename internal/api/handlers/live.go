package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/api/middleware"
	"smartspray.io/notifier/internal/pkg/logger"
)

// ServeLive handles GET /notifications/ws. The caller receives
// {type: "NEW_NOTIFICATION", notification} frames for their own
// notifications until they disconnect.
func (s *Server) ServeLive(c *gin.Context) {
	userID := middleware.GetUserID(c.Request.Context())
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Debug("live upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.hub.Serve(c.Request.Context(), conn, userID)
}
