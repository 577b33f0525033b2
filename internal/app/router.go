package app

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"smartspray.io/notifier/internal/api/handlers"
	"smartspray.io/notifier/internal/api/middleware"
	"smartspray.io/notifier/internal/config"
	"smartspray.io/notifier/internal/pkg/logger"
)

// APIBasePath prefixes every authenticated route.
const APIBasePath = "/api/v1"

var defaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	server.RegisterHealthRoutes(router)

	api := router.Group(APIBasePath)
	api.Use(middleware.JWTAuth(jwtCfg), middleware.MustOpenAPIValidator(APIBasePath))
	server.RegisterRoutes(api)

	ops := api.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	ops.Any("/log/level", gin.WrapH(logger.Handler()))
	return router
}

// buildCORSConfig turns the configured origins into a cors.Config. A "*"
// entry allows every origin and disables credentials, which browsers refuse
// to combine with a wildcard.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	origins := cfg.Server.AllowedOrigins
	switch {
	case slices.Contains(origins, "*"):
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	case len(origins) == 0:
		c.AllowOrigins = slices.Clone(defaultAllowedOrigins)
	default:
		c.AllowOrigins = slices.Clone(origins)
	}
	return c
}
