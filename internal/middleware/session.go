package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PaulBabatuyi/pairchat/internal/auth"
)

const claimsKey = "session_claims"

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// Session requires a valid token from the session cookie or an
// "Authorization: Bearer" header and stores its claims on the context.
func Session(v TokenVerifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := Token(c, cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		claims, err := v.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Token returns the request's session token. A Bearer header takes
// precedence over the cookie; any other Authorization scheme yields "".
func Token(c *gin.Context, cookieName string) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}

// Claims returns the claims stored by Session.
func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
