package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mabletask/insights/utils"
)

func apiKeyMatches(c *gin.Context, apiKey string) bool {
	got := c.GetHeader("X-API-KEY")
	return apiKey != "" && got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) == 1
}

// APIKeyRequired admits only requests carrying the configured X-API-KEY.
func APIKeyRequired(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !apiKeyMatches(c, apiKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: API key required"})
			return
		}
		c.Next()
	}
}

// AuthRequired admits requests with the X-API-KEY or a valid HS256 JWT from
// the token cookie or the Authorization header. The header is still tried when
// the cookie holds a stale token.
func AuthRequired(apiKey, jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		if apiKeyMatches(c, apiKey) {
			c.Set("auth_method", "api_key")
			c.Next()
			return
		}

		candidates := tokenCandidates(c)
		if len(candidates) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}

		var claims *utils.Claims
		var err error
		for _, tokenString := range candidates {
			if claims, err = utils.ValidateJWT(secret, tokenString); err == nil {
				break
			}
			slog.Debug("rejected token", "path", c.FullPath(), "error", err)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set("auth_method", "jwt")
		c.Set("user_id", claims.Subject)
		c.Set("user_email", claims.Email)
		c.Next()
	}
}

// tokenCandidates returns the cookie token, then the Authorization header token.
func tokenCandidates(c *gin.Context) []string {
	var out []string
	if tok, err := c.Cookie(utils.TokenCookie); err == nil && tok != "" {
		out = append(out, tok)
	}
	if tok, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && tok != "" {
		out = append(out, tok)
	}
	return out
}
