package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/umtp/assist-gateway/internal/response"
	"github.com/umtp/assist-gateway/internal/service"
)

const (
	// DeviceCookie names the browser across sessions; it scopes the anonymous id.
	DeviceCookie = "umtp_device"
	// SessionCookie lives until the browser session ends; it scopes seen hints.
	SessionCookie = "umtp_session"

	// ContextKeyClient is the Gin context key for the service.Client.
	ContextKeyClient = "client"
)

// CookieOptions control the cookies ClientSession issues.
type CookieOptions struct {
	DeviceTTL time.Duration
	Secure    bool
}

// ClientSession identifies the browser by two cookies, minting whichever is
// missing. Cookie values that are not UUIDs are replaced.
func ClientSession(opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		device := readID(c, DeviceCookie)
		if device == "" {
			device = uuid.NewString()
			setCookie(c, DeviceCookie, device, int(opts.DeviceTTL.Seconds()), opts.Secure)
		}

		session := readID(c, SessionCookie)
		if session == "" {
			session = uuid.NewString()
			// MaxAge 0 keeps it a browser-session cookie.
			setCookie(c, SessionCookie, session, 0, opts.Secure)
		}

		c.Set(ContextKeyClient, service.Client{DeviceID: device, SessionID: session})
		c.Next()
	}
}

// RequireClient rejects requests that reached a handler without ClientSession.
func RequireClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetClient(c).SessionID == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionRequired)
			return
		}
		c.Next()
	}
}

// GetClient retrieves the client identity from the Gin context.
func GetClient(c *gin.Context) service.Client {
	val, exists := c.Get(ContextKeyClient)
	if !exists {
		return service.Client{}
	}
	client, _ := val.(service.Client)
	return client
}

func readID(c *gin.Context, name string) string {
	raw, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(raw); err != nil {
		return ""
	}
	return raw
}

func setCookie(c *gin.Context, name, value string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", secure, true)
}
