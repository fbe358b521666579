package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/service"
)

const unmatchedRoute = "unmatched"

var unobservedRoutes = map[string]struct{}{
	"/metrics":         {},
	"/metrics/summary": {},
	"/health":          {},
	"/ready":           {},
}

// Metrics records request counts and latency per route template.
// Probe and scrape endpoints are skipped, and requests matching no route share one label.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, skip := unobservedRoutes[route]; skip {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
