package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zento-ai/zento-server/internal/auth"
	"github.com/zento-ai/zento-server/internal/common"
	"github.com/zento-ai/zento-server/internal/store/redisstore"
)

const (
	UserIDKey    = "auth.user_id"
	SessionIDKey = "auth.session_id"
)

// AuthRequired validates the bearer token and checks that its device
// session has not been revoked.
func AuthRequired(secret string, sessions *redisstore.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
			c.Abort()
			return
		}

		claims, err := auth.ParseJWT(token, secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
			c.Abort()
			return
		}

		if sessions != nil {
			alive, err := sessions.SessionExists(c.Request.Context(), claims.UserID, claims.SessionID)
			if err != nil {
				log.Error("session lookup failed", zap.Error(err))
				common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
				c.Abort()
				return
			}
			if !alive {
				common.Fail(c, http.StatusUnauthorized, 40102, "session revoked")
				c.Abort()
				return
			}
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(SessionIDKey, claims.SessionID)
		c.Next()
	}
}
