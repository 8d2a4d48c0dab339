package mcpserver

import (
	"context"
	"net/http"
)

type authorizationKey struct{}

// withAuthorization copies the caller's Authorization header into the
// context handed to tool handlers.
func withAuthorization(ctx context.Context, r *http.Request) context.Context {
	return WithAuthorization(ctx, r.Header.Get("Authorization"))
}

// WithAuthorization stores an Authorization header value in ctx.
func WithAuthorization(ctx context.Context, authorization string) context.Context {
	return context.WithValue(ctx, authorizationKey{}, authorization)
}

func authorizationFrom(ctx context.Context) string {
	v, _ := ctx.Value(authorizationKey{}).(string)
	return v
}
