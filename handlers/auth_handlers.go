package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mabletask/insights/utils"
)

// TokenRequest names the dashboard operator a token is issued to.
type TokenRequest struct {
	Subject string `json:"subject" binding:"required"`
	Email   string `json:"email" binding:"omitempty,email"`
	Role    string `json:"role"`
}

type AuthHandlers struct {
	JWTSecret []byte
	Secure    bool
}

func NewAuthHandlers(secret string, secure bool) *AuthHandlers {
	return &AuthHandlers{JWTSecret: []byte(secret), Secure: secure}
}

// IssueToken exchanges an API key holder's request for a one-hour JWT, set
// as a cookie and returned in the body. It sits behind the API key check.
func (h *AuthHandlers) IssueToken(c *gin.Context) {
	if len(h.JWTSecret) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Token issuing is not configured"})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	role := utils.FirstNonEmpty(req.Role, "viewer")

	token, err := utils.GenerateJWT(h.JWTSecret, req.Subject, req.Email, role, utils.TokenTTL)
	if err != nil {
		slog.Error("failed to generate JWT", "subject", req.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetCookie(utils.TokenCookie, token, int(utils.TokenTTL/time.Second), "/", "", h.Secure, true)
	slog.Info("issued dashboard token", "subject", req.Subject, "role", role)
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int(utils.TokenTTL / time.Second),
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(utils.TokenCookie, "", -1, "/", "", h.Secure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
