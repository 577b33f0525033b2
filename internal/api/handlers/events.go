package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartspray.io/notifier/internal/notification"
)

type sprayCompletedRequest struct {
	UserID    string  `json:"user_id"`
	SprayID   string  `json:"spray_id"`
	FieldName string  `json:"field_name"`
	Litres    float64 `json:"litres"`
}

type diseaseDetectedRequest struct {
	UserID     string  `json:"user_id"`
	FarmID     string  `json:"farm_id"`
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

type deviceOfflineRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// SprayCompleted handles POST /admin/events/spray-completed.
func (s *Server) SprayCompleted(c *gin.Context) {
	var req sprayCompletedRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	s.respondCreated(c)(s.triggers.OnSprayCompleted(c.Request.Context(), req.UserID, req.SprayID, req.FieldName, req.Litres))
}

// DiseaseDetected handles POST /admin/events/disease-detected.
func (s *Server) DiseaseDetected(c *gin.Context) {
	var req diseaseDetectedRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	s.respondCreated(c)(s.triggers.OnDiseaseDetected(c.Request.Context(), req.UserID, req.FarmID, req.Disease, req.Confidence))
}

// DeviceOffline handles POST /admin/events/device-offline.
func (s *Server) DeviceOffline(c *gin.Context) {
	var req deviceOfflineRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	s.respondCreated(c)(s.triggers.OnDeviceOffline(c.Request.Context(), req.UserID, req.DeviceID))
}

func (s *Server) respondCreated(c *gin.Context) func(*notification.Notification, error) {
	return func(n *notification.Notification, err error) {
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, n)
	}
}
