package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders 基础安全响应头
// 本服务是纯 JSON API，不渲染页面，CSP 直接收紧到 none
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}
