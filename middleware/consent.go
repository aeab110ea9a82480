package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireConsent blocks identities whose token was minted without GDPR
// consent. Login already refuses such accounts; this guards tokens minted by
// other paths.
func RequireConsent() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !id.GDPRConsent {
			abort(c, http.StatusForbidden, "GDPR_CONSENT_REQUIRED")
			return
		}
		c.Next()
	}
}
