package api

import (
	"encoding/json"
	"strings"

	cerr "intake-service/internal/common/errors"
	"intake-service/internal/common/logger"
	"intake-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const callerContextKey = "caller"

// AuthRequired resolves the bearer token to a Redis-held session and puts
// the caller identity on the request context. Requests without a valid,
// unexpired session are rejected with 401.
func AuthRequired(redisClient *redis.Client, sessionPrefix string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortWithError(c, cerr.NewUnauthorizedError("missing bearer token"))
			return
		}

		raw, err := redisClient.Get(c.Request.Context(), sessionPrefix+token).Result()
		if err != nil {
			abortWithError(c, cerr.NewUnauthorizedError("invalid or expired session"))
			return
		}

		var session models.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			log.Warn("malformed session payload", map[string]interface{}{"error": err.Error()})
			abortWithError(c, cerr.NewUnauthorizedError("invalid session"))
			return
		}
		if session.IsExpired() {
			abortWithError(c, cerr.NewUnauthorizedError("session expired"))
			return
		}

		caller := session.Caller()
		caller.IP = c.ClientIP()
		c.Set(callerContextKey, caller)
		c.Next()
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func callerFrom(c *gin.Context) models.Caller {
	if v, ok := c.Get(callerContextKey); ok {
		if caller, ok := v.(models.Caller); ok {
			return caller
		}
	}
	return models.Caller{}
}

func abortWithError(c *gin.Context, serr *cerr.StandardError) {
	c.AbortWithStatusJSON(cerr.HTTPStatus(serr.Code), gin.H{
		"error": serr.Message,
		"code":  serr.Code,
	})
}
