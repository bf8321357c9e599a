package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit отклоняет запросы сверх rps со статусом 429. Шлюзы обязаны
// повторять отклоненные уведомления, потеря вебхука тут не происходит.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"success": false, "error": "too many requests"})
			return
		}
		c.Next()
	}
}
