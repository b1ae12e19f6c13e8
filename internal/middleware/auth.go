package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/session"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/auth"
)

type SessionResolver interface {
	ResolveSession(ctx context.Context, accessToken string) (*session.Session, error)
}

// Auth resolves the bearer token into a session. The request starts with an
// anonymous session; it is replaced once the token and profile check out
// and cleared again if either is rejected.
func Auth(resolver SessionResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session.Init(c)

		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		sess, err := resolver.ResolveSession(c.Request.Context(), token)
		if err != nil {
			session.Clear(c)
			switch {
			case errors.Is(err, domain.ErrTimeout):
				c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
			case errors.Is(err, auth.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired", "code": "TOKEN_EXPIRED"})
			default:
				log.Debug("rejected bearer token", zap.String("request_id", GetRequestID(c)), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			}
			return
		}

		session.Set(c, sess)
		c.Next()
	}
}

// RequireRole rejects callers whose profile role is not one of roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := session.From(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, r := range roles {
			if sess.Role() == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}
