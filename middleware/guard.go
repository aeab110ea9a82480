package middleware

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/blogauth"
	"github.com/MrEthical07/blogauth/jwt"
	"github.com/gin-gonic/gin"
)

const identityKey = "blogauth.identity"

// TokenParser verifies a bearer token. *jwt.Manager satisfies it.
type TokenParser interface {
	Parse(token string) (*jwt.Claims, error)
}

// Identity returns the assertion stored by RequireIdentity.
func Identity(c *gin.Context) (blogauth.IdentityAssertion, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return blogauth.IdentityAssertion{}, false
	}
	id, ok := v.(blogauth.IdentityAssertion)
	return id, ok
}

// RequireIdentity rejects requests without a valid bearer token and stores
// the token's identity on the gin context.
func RequireIdentity(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if parser == nil {
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := parser.Parse(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		c.Set(identityKey, claims.Assertion())
		c.Next()
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func abort(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
