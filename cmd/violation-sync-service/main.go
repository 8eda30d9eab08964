package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tsgsafety/osha_tracker/config"
	"github.com/tsgsafety/osha_tracker/middlewares"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/violationsync"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("VIOLATION_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	settings := config.LoadSyncSettings()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The service is set once the database is up; until then every route but
	// /healthz answers 503.
	var svc atomic.Pointer[violationsync.Service]

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if svc.Load() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Cron-Secret")
	corsConfig.AddExposeHeaders("Content-Length")

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.RequestLogger(logger))
	r.Use(gin.Recovery())

	handle := func(h func(*violationsync.Service) gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) { h(svc.Load())(c) }
	}

	api := r.Group("/api/inspections")
	api.POST("/sync/violations", handle((*violationsync.Service).TriggerSyncHandler))
	api.GET("/sync/violations/status", handle((*violationsync.Service).StatusHandler))
	api.POST("/:activity_nr/sync-violations", handle((*violationsync.Service).InspectionSyncHandler))
	api.GET("/penalty-drift", handle((*violationsync.Service).PenaltyDriftHandler))

	cron := api.Group("/cron", middlewares.CronAuthMiddleware(settings.CronSecret))
	cron.GET("/violations", handle((*violationsync.Service).CronSyncHandler))
	cron.GET("/violations/bulk", handle((*violationsync.Service).CronBulkSyncHandler))

	// Pub/Sub push endpoint.
	r.POST("/pubsub/violation-sync", handle((*violationsync.Service).PubSubPushHandler))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx, 3)

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !config.SkipMigrations() {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	svc.Store(violationsync.NewService(db, settings, violationsync.NewStatusCache(config.GetRedisDB())))
	logger.WithFields(logrus.Fields{"field": "server", "port": port, "regions": settings.Regions}).Info("violation sync service ready")

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
