package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"german-ocr/internal/shared/server/respond"
)

const principalKey = "principal"

// Credentials is the key/secret pair a client must present as
// "Authorization: Bearer key:secret".
type Credentials struct {
	APIKey    string
	APISecret string
}

// Enabled reports whether both halves are configured.
func (c Credentials) Enabled() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// Auth validates the bearer credentials and stores the API key as the
// request principal. With no credentials configured every request is
// accepted as "anonymous", which is only meant for local development.
func Auth(creds Credentials, public ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(public))
	for _, p := range public {
		skip[p] = struct{}{}
	}
	want := []byte(creds.APIKey + ":" + creds.APISecret)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		if !creds.Enabled() {
			c.Set(principalKey, "anonymous")
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		key, _, found := strings.Cut(token, ":")
		if !found || key == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid api key or secret", nil)
			return
		}

		c.Set(principalKey, key)
		c.Next()
	}
}

// PrincipalFromContext returns the API key the request authenticated with.
func PrincipalFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(principalKey)
	if p, ok := val.(string); ok {
		return p
	}
	return ""
}
