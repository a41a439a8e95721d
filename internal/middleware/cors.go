package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func CORS(allowlist []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, origin := range allowlist {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}
	allowAll := len(allowed) == 0
	setHeaders := func(c *gin.Context, origin string) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			setHeaders(c, "*")
		} else if origin != "" {
			if _, ok := allowed[origin]; ok {
				setHeaders(c, origin)
				c.Writer.Header().Set("Vary", "Origin")
			}
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
