package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pricewatch_backend/services/ratelimit"
)

// RateLimitMiddleware throttles API requests per client IP using the
// same fixed-window limiter the price cache meters fetches with.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "api:" + c.ClientIP()

		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please retry later",
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiter.Remaining(key)))
		c.Next()
	}
}
