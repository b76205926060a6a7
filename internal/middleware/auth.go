package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/pkg/jwt"
	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userID"
	ctxEmail  = "email"
)

// TokenVerifier verifies access tokens; *jwt.Manager implements it
type TokenVerifier interface {
	Verify(tokenString string) (*jwt.Claims, error)
}

// JWTAuth requires a Bearer token.
// Missing or malformed header: 401. Invalid or expired token: 403.
func JWTAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}
		authenticate(c, verifier, token)
	}
}

// JWTAuthWS is JWTAuth for WebSocket upgrades, which cannot set headers from a browser.
// The token may come from the ?token= query parameter when the header is absent.
func JWTAuthWS(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if token := c.Query("token"); token != "" {
				authenticate(c, verifier, token)
				return
			}
		}
		token, ok := bearerToken(c)
		if !ok {
			return
		}
		authenticate(c, verifier, token)
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Missing authorization header", nil)
		c.Abort()
		return "", false
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Invalid authorization header format", nil)
		c.Abort()
		return "", false
	}
	return token, true
}

func authenticate(c *gin.Context, verifier TokenVerifier, token string) {
	claims, err := verifier.Verify(token)
	if err != nil {
		message := "Invalid token"
		if errors.Is(err, jwt.ErrExpiredToken) {
			message = "Token expired"
		}
		common.ErrorResponse(c, http.StatusForbidden, message, nil)
		c.Abort()
		return
	}

	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxEmail, claims.Email)
	c.Next()
}

// GetUserID extracts the authenticated user ID; 0 when absent
func GetUserID(c *gin.Context) uint64 {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(uint64); ok {
			return id
		}
	}
	return 0
}

// GetEmail extracts the authenticated email
func GetEmail(c *gin.Context) string {
	return c.GetString(ctxEmail)
}
