package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"mes-execution-backend/config"
	"mes-execution-backend/internal/execution"
	"mes-execution-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(exec *execution.Facade, db *gorm.DB, cfg *config.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(), mw.Logger(log.Named("http")), gzip.Gzip(gzip.DefaultCompression))

	handler := NewHandler(exec, log.Named("api"))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	r.GET("/healthz", healthz(db))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(mw.Identity(cfg.Auth.JWTSecret), rateLimiter)
	{
		api.GET("/meta/enums", caching, GetEnums)

		api.POST("/work-orders", handler.CreateWorkOrder)
		api.GET("/work-orders", handler.ListWorkOrders)
		api.GET("/work-orders/:id", handler.GetWorkOrder)
		api.POST("/work-orders/:id/transitions", handler.TransitionWorkOrder)
		api.POST("/work-orders/:id/deactivate", handler.DeactivateWorkOrder)
		api.POST("/work-orders/:id/results", handler.RecordResult)

		api.GET("/work-results/:id", handler.GetWorkResult)
		api.PUT("/work-results/:id", handler.UpdateWorkResult)
		api.POST("/work-results/:id/reverse", handler.ReverseWorkResult)

		api.POST("/downtime", handler.OpenDowntime)
		api.GET("/downtime", handler.ListDowntime)
		api.GET("/downtime/:id", handler.GetDowntime)
		api.PATCH("/downtime/:id", handler.UpdateDowntime)
		api.POST("/downtime/:id/resolve", handler.ResolveDowntime)
		api.POST("/downtime/:id/notes", handler.AnnotateDowntime)
	}

	return r
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
