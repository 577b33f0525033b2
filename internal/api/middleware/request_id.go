package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	callerKey
)

// Caller is the authenticated principal of a request.
type Caller struct {
	UserID   string
	Username string
	Roles    []string
}

// RequestID reuses the caller's X-Request-ID or mints a UUIDv7, and echoes
// it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			if id, err := uuid.NewV7(); err == nil {
				rid = id.String()
			}
		}
		c.Header(RequestIDHeader, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey, rid))
		c.Next()
	}
}

// GetRequestID returns the request id, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}

// WithCaller attaches the authenticated caller to ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom returns the caller set by JWTAuth.
func CallerFrom(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey).(Caller)
	return caller, ok
}

// GetUserID returns the caller's user id, or "" when unauthenticated.
func GetUserID(ctx context.Context) string {
	caller, _ := CallerFrom(ctx)
	return caller.UserID
}

// GetRoles returns the caller's roles, or nil when unauthenticated.
func GetRoles(ctx context.Context) []string {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return nil
	}
	return caller.Roles
}
