package resource

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"docsplatform/internal/models"
)

type contextKey string

const callerContextKey contextKey = "caller"

// ContextWithCaller stores the authenticated user on ctx.
func ContextWithCaller(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, callerContextKey, user)
}

// CallerFromContext returns the authenticated user, if any.
func CallerFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(callerContextKey).(models.User)
	return user, ok
}

// AbsoluteURL builds an absolute URL on the request's host.
func AbsoluteURL(r *http.Request, path, rawQuery string) *url.URL {
	return &url.URL{Scheme: requestScheme(r), Host: r.Host, Path: path, RawQuery: rawQuery}
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		if strings.EqualFold(strings.TrimSpace(first), "https") {
			return "https"
		}
	}
	return "http"
}
