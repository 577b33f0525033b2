package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string, len(s.checks))
	allHealthy := true

	for name, p := range s.checks {
		if err := p.Ping(c.Request.Context()); err != nil {
			checks[name] = "error"
			allHealthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, httpStatus := "ok", http.StatusOK
	if !allHealthy {
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	}
	body := gin.H{"status": status, "checks": checks}
	if s.metrics != nil {
		body["workers"] = s.metrics()
	}
	c.JSON(httpStatus, body)
}
