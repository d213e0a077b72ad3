package middlewares

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"booth/src/lib"

	"github.com/gin-gonic/gin"
)

const (
	shareRateLimit  = 30
	shareRateWindow = time.Minute
)

// ShareRateLimit throttles the public share endpoint per client IP with a
// fixed Redis counter window. Redis being down fails open, sharing should
// not break because the cache is out.
func ShareRateLimit(ctx *gin.Context) {
	rd := lib.GetRedisClient()
	if rd == nil {
		return
	}
	key := fmt.Sprintf("ratelimit:share:%s", ctx.ClientIP())
	count, err := rd.Incr(context.Background(), key).Result()
	if err != nil {
		log.Printf("[ratelimit] Redis error: %s\n", err.Error())
		return
	}
	if count == 1 {
		rd.Expire(context.Background(), key, shareRateWindow)
	}
	if count > shareRateLimit {
		ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	}
}
