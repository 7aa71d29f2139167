package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit throttles by client IP using an in-memory store. Applied to
// the credential endpoints to slow brute-force and OTP guessing.
// The rate format is ulule's, e.g. "10-M" for ten per minute.
func RateLimit(formatted string) gin.HandlerFunc {
	r, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		panic(err)
	}
	instance := limiter.New(memory.NewStore(), r)

	return func(c *gin.Context) {
		limiterCtx, err := instance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "rate limiter error"})
			return
		}
		if limiterCtx.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "too many requests"})
			return
		}
		c.Next()
	}
}
