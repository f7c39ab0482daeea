package httptransport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"proscan-server-go/internal/domain/auth"
)

const operatorKey = "operator"

// BearerAuth guards routes with operator tokens. Without a configured secret
// it lets every request through.
func BearerAuth(tokens *auth.AuthToken) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tokens.Enabled() {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			RespondError(c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}
		operator, err := tokens.VerifyToken(raw)
		if err != nil {
			RespondError(c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}
		c.Set(operatorKey, operator)
		c.Next()
	}
}

// Operator returns the authenticated operator, if any.
func Operator(c *gin.Context) string {
	return c.GetString(operatorKey)
}
