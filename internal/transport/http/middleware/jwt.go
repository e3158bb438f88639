package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"syllabussync/internal/model"
	"syllabussync/internal/pkg/jwtutil"
	"syllabussync/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextEmailKey  = "email"
)

// UserResolver supplies the user for requests without a bearer token.
type UserResolver func(ctx context.Context) (*model.User, error)

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}
		if !authenticate(c, secret, authHeader) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuthJWT accepts a bearer token when one is sent and otherwise
// attributes the request to the user returned by fallback. A bad token is
// still rejected.
func OptionalAuthJWT(secret string, fallback UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader != "" {
			if !authenticate(c, secret, authHeader) {
				c.Abort()
				return
			}
			c.Next()
			return
		}

		user, err := fallback(c.Request.Context())
		if err != nil || user == nil {
			response.Error(c, 500, response.CodeInternalServer, "resolve default user failed")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextEmailKey, user.Email)
		c.Next()
	}
}

func authenticate(c *gin.Context, secret, authHeader string) bool {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
		return false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	claims, err := jwtutil.ParseToken(secret, token)
	if err != nil {
		response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
		return false
	}

	c.Set(ContextUserIDKey, claims.UserID)
	c.Set(ContextEmailKey, claims.Email)
	return true
}
