package middlewares

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type QuotaRule struct {
	Limit  int                       // requests allowed per window
	Window time.Duration             // starts at the first request
	KeyFn  func(*gin.Context) string // "" skips the quota
}

// Quota counts requests per key in Redis. When Redis is unreachable the
// request is let through.
func Quota(rdb *redis.Client, rule QuotaRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rule.KeyFn(c)
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		n, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			slog.Warn("quota: redis unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}
		if n == 1 {
			_ = rdb.Expire(ctx, key, rule.Window).Err()
		}
		if int(n) > rule.Limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"code":    "quota_exceeded",
				"message": "Usage quota exceeded. Please try again later.",
			})
			return
		}
		c.Header("X-Quota-Used", fmt.Sprintf("%d/%d", n, rule.Limit))
		c.Next()
	}
}

// UserDailyKey scopes a quota to the authenticated user and the current day.
func UserDailyKey(c *gin.Context) string {
	uid := c.GetInt64(CtxUserID)
	if uid == 0 {
		return ""
	}
	return fmt.Sprintf("quota:user:%d:day", uid)
}
