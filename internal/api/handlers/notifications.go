package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/oapi-codegen/runtime"

	"smartspray.io/notifier/internal/api/middleware"
	"smartspray.io/notifier/internal/notification"
	apperrors "smartspray.io/notifier/internal/pkg/errors"
)

// listParams are the query parameters of GET /notifications.
type listParams struct {
	Read    *bool
	Kind    *string
	Page    *int
	PerPage *int
}

func bindListParams(c *gin.Context) (listParams, error) {
	var p listParams
	query := c.Request.URL.Query()
	bindings := []struct {
		name string
		dest interface{}
	}{
		{"read", &p.Read},
		{"kind", &p.Kind},
		{"page", &p.Page},
		{"per_page", &p.PerPage},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			return p, apperrors.ErrInvalidRequestField(b.name)
		}
	}
	return p, nil
}

// ListNotifications handles GET /notifications.
func (s *Server) ListNotifications(c *gin.Context) {
	params, err := bindListParams(c)
	if err != nil {
		fail(c, err)
		return
	}

	filter := notification.ListFilter{UserID: middleware.GetUserID(c.Request.Context()), Read: params.Read}
	if params.Kind != nil {
		filter.Kind = notification.Kind(*params.Kind)
	}
	if params.Page != nil {
		filter.Page = *params.Page
	}
	if params.PerPage != nil {
		filter.PerPage = *params.PerPage
	}

	page, err := s.store.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func init() {
	// Request bodies are closed shapes, with or without the contract validator.
	binding.EnableDecoderDisallowUnknownFields = true
}

// bindJSON decodes the JSON body into dest. Unknown fields are rejected.
func bindJSON(c *gin.Context, dest any) error {
	if err := c.ShouldBindWith(dest, binding.JSON); err != nil {
		return apperrors.ErrInvalidRequestField(err.Error())
	}
	return nil
}

// CreateNotification handles POST /notifications. The recipient defaults to
// the caller; only admins may address another user.
func (s *Server) CreateNotification(c *gin.Context) {
	var req notification.CreateRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	caller := middleware.GetUserID(c.Request.Context())
	switch {
	case req.UserID == "":
		req.UserID = caller
	case req.UserID != caller && !middleware.IsAdmin(c):
		fail(c, notification.ErrForbidden)
		return
	}

	n, err := s.dispatcher.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// GetNotificationStats handles GET /notifications/stats.
func (s *Server) GetNotificationStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context(), middleware.GetUserID(c.Request.Context()), s.recentLimit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetUnreadCount handles GET /notifications/unread-count.
func (s *Server) GetUnreadCount(c *gin.Context) {
	count, err := s.store.UnreadCount(c.Request.Context(), middleware.GetUserID(c.Request.Context()))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkAllNotificationsRead handles PUT /notifications/read-all.
func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	count, err := s.store.MarkAllRead(c.Request.Context(), middleware.GetUserID(c.Request.Context()))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// GetNotification handles GET /notifications/{id}.
func (s *Server) GetNotification(c *gin.Context) {
	n, err := s.store.Get(c.Request.Context(), c.Param("id"), requester(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// MarkNotificationRead handles PUT /notifications/{id}/read.
func (s *Server) MarkNotificationRead(c *gin.Context) {
	n, err := s.store.MarkRead(c.Request.Context(), c.Param("id"), requester(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// DeleteNotification handles DELETE /notifications/{id}.
func (s *Server) DeleteNotification(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("id"), requester(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
