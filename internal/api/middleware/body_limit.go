package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"house-of-david/backend/pkg/response"
)

// BodyLimit 请求体大小限制中间件
// 声明长度超限直接返回 413；未声明长度时读取超限由 Handler 处理 *http.MaxBytesError
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, http.StatusRequestEntityTooLarge, "请求体过大")
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
