package routers

import (
	"strconv"
	"time"

	"github.com/GrainArc/MapEdit/logger"
	"github.com/GrainArc/MapEdit/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics 记录请求数与耗时，route 取注册的路由模板
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDurationMs.WithLabelValues(method, route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// Logger 请求日志
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.L().Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"cost", time.Since(start),
		)
	}
}
