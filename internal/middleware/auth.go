package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/umtp/assist-gateway/internal/eventlog"
	"github.com/umtp/assist-gateway/internal/response"
	"github.com/umtp/assist-gateway/internal/workflow"
)

const (
	// ContextKeyCaller is the Gin context key for the workflow.Caller.
	ContextKeyCaller = "caller"
)

// OptionalIDToken reads the identity provider's ID token from the Authorization
// header (or ?token= for WebSocket upgrades). Signatures are checked by the
// backend that receives the token; here it only yields the student id and is
// forwarded with log events. Requests without a token proceed anonymously.
func OptionalIDToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Set(ContextKeyCaller, workflow.Caller{})
			c.Next()
			return
		}

		studentID, err := eventlog.StudentIDFromToken(token)
		if err != nil && !errors.Is(err, eventlog.ErrNoEmailClaim) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyCaller, workflow.Caller{
			StudentID: studentID,
			Token:     eventlog.StaticToken(token),
		})
		c.Next()
	}
}

// GetCaller retrieves the caller from the Gin context.
func GetCaller(c *gin.Context) workflow.Caller {
	val, exists := c.Get(ContextKeyCaller)
	if !exists {
		return workflow.Caller{}
	}
	caller, _ := val.(workflow.Caller)
	return caller
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Fallback for WebSocket upgrades, which cannot send headers from browsers
	return c.Query("token")
}
