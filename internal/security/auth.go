package security

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthMiddleware validates platform-issued HS256 bearer tokens when a
// shared secret is configured. Auth is issued by the BaaS, not by this
// service; here tokens only identify the caller for quota accounting and
// request logs. Requests without a token pass through anonymously; a
// presented but invalid token is rejected.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	if secret == "" {
		slog.Info("JWT secret not configured, requests are treated as anonymous")
		return func(c *gin.Context) {
			c.Next()
		}
	}

	key := []byte(secret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization header format",
			})
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		})

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				c.Set("user_id", sub)
			}
			if role, ok := claims["role"].(string); ok && role != "" {
				c.Set("user_role", role)
			}
		}

		c.Next()
	}
}
