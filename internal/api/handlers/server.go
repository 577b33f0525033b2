// Package handlers implements the notifier's HTTP endpoints. Routes are
// registered by RegisterRoutes; request shapes are checked against the
// embedded OpenAPI contract before they reach a handler.
package handlers

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"smartspray.io/notifier/internal/api/middleware"
	"smartspray.io/notifier/internal/live"
	"smartspray.io/notifier/internal/notification"
)

// BroadcastEnqueuer hands a broadcast to the job queue.
type BroadcastEnqueuer interface {
	EnqueueBroadcast(ctx context.Context, req notification.BroadcastRequest) (int64, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Store      notification.Store
	Dispatcher *notification.Dispatcher
	Triggers   *notification.Triggers
	Hub        *live.Hub

	// Broadcasts is nil on the SQLite backend; broadcasts then run inline.
	Broadcasts BroadcastEnqueuer

	// Readiness checks keyed by component name.
	Checks map[string]Pinger
	// Metrics reports worker pool occupancy on the readiness probe.
	Metrics func() map[string]map[string]int

	RecentLimit    int
	RetentionDays  int
	AllowedOrigins []string
}

// Server implements the API handlers.
type Server struct {
	store         notification.Store
	dispatcher    *notification.Dispatcher
	triggers      *notification.Triggers
	hub           *live.Hub
	broadcasts    BroadcastEnqueuer
	checks        map[string]Pinger
	metrics       func() map[string]map[string]int
	recentLimit   int
	retentionDays int
	upgrader      websocket.Upgrader
}

// NewServer creates a Server.
func NewServer(deps ServerDeps) *Server {
	recent := deps.RecentLimit
	if recent <= 0 {
		recent = 5
	}
	triggers := deps.Triggers
	if triggers == nil && deps.Dispatcher != nil {
		triggers = notification.NewTriggers(deps.Dispatcher)
	}
	origins := deps.AllowedOrigins
	return &Server{
		store:         deps.Store,
		dispatcher:    deps.Dispatcher,
		triggers:      triggers,
		hub:           deps.Hub,
		broadcasts:    deps.Broadcasts,
		checks:        deps.Checks,
		metrics:       deps.Metrics,
		recentLimit:   recent,
		retentionDays: deps.RetentionDays,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return originAllowed(origins, r.Header.Get("Origin")) },
		},
	}
}

// RegisterRoutes mounts the authenticated API on group (normally /api/v1).
func (s *Server) RegisterRoutes(group *gin.RouterGroup) {
	n := group.Group("/notifications")
	n.GET("", s.ListNotifications)
	n.POST("", s.CreateNotification)
	n.GET("/stats", s.GetNotificationStats)
	n.GET("/unread-count", s.GetUnreadCount)
	n.PUT("/read-all", s.MarkAllNotificationsRead)
	n.GET("/ws", s.ServeLive)
	n.GET("/:id", s.GetNotification)
	n.PUT("/:id/read", s.MarkNotificationRead)
	n.DELETE("/:id", s.DeleteNotification)

	admin := group.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/notifications/broadcast", s.BroadcastNotification)
	admin.POST("/notifications/cleanup", s.CleanupNotifications)
	admin.POST("/events/spray-completed", s.SprayCompleted)
	admin.POST("/events/disease-detected", s.DiseaseDetected)
	admin.POST("/events/device-offline", s.DeviceOffline)
}

// RegisterHealthRoutes mounts unauthenticated probes.
func (s *Server) RegisterHealthRoutes(r gin.IRoutes) {
	r.GET("/health/live", s.GetLiveness)
	r.GET("/health/ready", s.GetReadiness)
}

// requester builds the store requester for the authenticated caller.
func requester(c *gin.Context) notification.Requester {
	return notification.Requester{
		UserID: middleware.GetUserID(c.Request.Context()),
		Admin:  middleware.IsAdmin(c),
	}
}

// originAllowed mirrors the CORS policy for WebSocket upgrades. Requests
// without an Origin header are not from browsers and are allowed.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}
