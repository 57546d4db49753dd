// Package router assembles the Gin engine from the registered domain modules.
package router

import (
	"net/http"
	"time"

	apphttp "outreach_engine_backend/internal/http"
	"outreach_engine_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// New builds the engine, mounts shared middleware, and lets every module
// register its routes.
func New(app *apphttp.App, rateLimit rate.Limit, burst int) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())

	corsConfig := cors.DefaultConfig()
	if app.Config.GetCORSAllowAll() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = app.Config.GetCORSOrigins()
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, httpkit.APIKeyHeader)
	corsConfig.MaxAge = 12 * time.Hour
	engine.Use(cors.New(corsConfig))

	engine.GET("/api/health", func(c *gin.Context) {
		if app.Health != nil {
			if err := app.Health.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")
	secured := v1.Group("")
	secured.Use(httpkit.APIKeyAuth(app.Config.GetIngestAPIKey()))

	routerCtx := &apphttp.RouterContext{
		Engine:            engine,
		V1:                v1,
		Secured:           secured,
		IngestRateLimiter: httpkit.NewIPRateLimiter(rateLimit, burst, app.Logger),
	}

	for _, module := range app.Modules {
		module.RegisterRoutes(routerCtx)
		app.Logger.Info("module routes registered", "module", module.Name())
	}

	return engine
}
