package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pkgzerolog "github.com/duynhne/event-gate/pkg/logger/zerolog"
)

// ClientIDKey is the gin context key holding the client id.
const ClientIDKey = "client_id"

// ClientCookie describes the cookie that identifies a browser client.
type ClientCookie struct {
	Name   string
	MaxAge int // seconds
	Secure bool
}

// ClientMiddleware makes sure every request carries a client id. A missing
// or malformed cookie is replaced with a fresh UUID; the id is stored under
// ClientIDKey and added to the request logger.
func ClientMiddleware(cookie ClientCookie) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cookie.Name)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
		}
		// Re-issued on every request so the cookie slides with the session.
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookie.Name, id, cookie.MaxAge, "/", "", cookie.Secure, true)
		c.Set(ClientIDKey, id)

		ctx := pkgzerolog.WithFields(c.Request.Context(), map[string]string{"client_id": id})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// ClientID returns the client id set by ClientMiddleware.
func ClientID(c *gin.Context) string {
	return c.GetString(ClientIDKey)
}
