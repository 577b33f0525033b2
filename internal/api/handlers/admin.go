package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/api/middleware"
	"smartspray.io/notifier/internal/notification"
	apperrors "smartspray.io/notifier/internal/pkg/errors"
	"smartspray.io/notifier/internal/pkg/logger"
)

// BroadcastNotification handles POST /admin/notifications/broadcast. With a
// job queue the broadcast is enqueued (202); otherwise it runs inline (200).
func (s *Server) BroadcastNotification(c *gin.Context) {
	var req notification.BroadcastRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	if s.broadcasts != nil {
		if err := req.Validate(); err != nil {
			fail(c, err)
			return
		}
		jobID, err := s.broadcasts.EnqueueBroadcast(c.Request.Context(), req)
		if err != nil {
			_ = c.Error(apperrors.ErrBroadcastFailed(err))
			return
		}
		logger.Info("broadcast enqueued",
			zap.Int64("job_id", jobID),
			zap.String("admin_id", middleware.GetUserID(c.Request.Context())),
		)
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
		return
	}

	res, err := s.dispatcher.Broadcast(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CleanupNotifications handles POST /admin/notifications/cleanup.
func (s *Server) CleanupNotifications(c *gin.Context) {
	days := s.retentionDays
	var override *int
	if err := runtime.BindQueryParameter("form", true, false, "retention_days", c.Request.URL.Query(), &override); err != nil {
		fail(c, apperrors.ErrInvalidRequestField("retention_days"))
		return
	}
	if override != nil {
		days = *override
	}

	deleted, err := notification.Cleanup(c.Request.Context(), s.store, days)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
