package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"house-of-david/backend/pkg/metrics"
)

// Metrics 记录请求计数与耗时
// 使用路由模板作为标签，避免会话 ID 造成高基数
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
