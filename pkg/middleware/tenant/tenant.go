package tenant

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

const (
	// DefaultHeader carries the school identifier on every scoped request.
	DefaultHeader = "X-Tenant-ID"
	contextKey    = "tenant_id"
)

type ctxKey struct{}

// Middleware resolves the tenant from the request header and rejects requests without one.
func Middleware(header string) gin.HandlerFunc {
	if header == "" {
		header = DefaultHeader
	}
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(header))
		if id == "" {
			response.Error(c, appErrors.ErrTenantRequired)
			c.Abort()
			return
		}
		c.Set(contextKey, id)
		c.Request = c.Request.WithContext(WithTenant(c.Request.Context(), id))
		c.Next()
	}
}

// Value returns the tenant stored in the Gin context.
func Value(c *gin.Context) string {
	if v, exists := c.Get(contextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithTenant stores the tenant on a context for code running outside of gin.
func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the tenant stored by WithTenant.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
