package api

import "github.com/gin-gonic/gin"

// reviewerIdentity resolves who is acting, for audit fields on
// proposal edits and status changes. Behind an authenticating proxy
// the forwarded-user headers carry the identity; otherwise a body
// field or the generic fallback is used.
func reviewerIdentity(c *gin.Context, bodyValue string) string {
	if bodyValue != "" {
		return bodyValue
	}
	for _, header := range []string{"X-Forwarded-User", "X-Forwarded-Email", "X-Remote-User"} {
		if v := c.GetHeader(header); v != "" {
			return v
		}
	}
	return "api-client"
}
