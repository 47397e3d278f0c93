package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ownerKey = "ownerID"

// OwnerClaims carries the field rep identity issued by the auth backend. The
// remote endpoints re-authorize independently; this only stamps ownerId on
// enqueued items and scopes dashboard reads.
type OwnerClaims struct {
	OwnerID string `json:"uid"`
	Name    string `json:"name"`
	jwt.RegisteredClaims
}

func JWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header missing"})
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &OwnerClaims{}, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid access token"})
			return
		}

		claims, ok := token.Claims.(*OwnerClaims)
		if !ok || claims.OwnerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		c.Set(ownerKey, claims.OwnerID)
		c.Next()
	}
}

// OwnerID returns the authenticated owner set by JWTMiddleware.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
