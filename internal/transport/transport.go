package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ds124wfegd/linktracker/internal/metrics"
	"github.com/ds124wfegd/linktracker/internal/transport/middleware"
)

type RouterOptions struct {
	Version        string
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
	// Checks are run by /health, any error turns the service unhealthy.
	Checks map[string]func(ctx context.Context) error
}

func InitRoutes(opts RouterOptions, redirect *LinkHandler, handlers ...Handler) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	if opts.Metrics != nil {
		router.Use(middleware.Metrics(opts.Metrics))
	}
	router.Use(middleware.Timeout(opts.RequestTimeout))

	router.GET("/health", health(opts))
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}

	router.GET("/:code", redirect.Redirect)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
		})
	})
	return router
}

func health(opts RouterOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		checks := make(map[string]string, len(opts.Checks))
		for name, check := range opts.Checks {
			if err := check(c.Request.Context()); err != nil {
				checks[name] = err.Error()
				status, code = "unhealthy", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":  status,
			"service": "linktracker",
			"version": opts.Version,
			"checks":  checks,
		})
	}
}
