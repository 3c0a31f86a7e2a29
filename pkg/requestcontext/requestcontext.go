// Package requestcontext carries per-request metadata through context so
// domain services stay free of transport imports.
package requestcontext

import (
	"context"
	"time"
)

type requestIDKey struct{}
type userAgentKey struct{}
type walletClientKey struct{}
type nowKey struct{}

// WithRequestID attaches the request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request correlation id, or "" when absent.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithUserAgent attaches the raw User-Agent header value.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

// UserAgent returns the raw User-Agent header value, or "" when absent.
func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(userAgentKey{}).(string); ok {
		return v
	}
	return ""
}

// WithWalletClient attaches a normalized wallet client label ("browser/chrome",
// "mobile/ios", ...) derived from the User-Agent.
func WithWalletClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, walletClientKey{}, client)
}

// WalletClient returns the normalized wallet client label, or "" when absent.
func WalletClient(ctx context.Context) string {
	if v, ok := ctx.Value(walletClientKey{}).(string); ok {
		return v
	}
	return ""
}

// WithNow pins the request clock. Tests use this to make expiry checks
// deterministic.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, nowKey{}, now)
}

// Now returns the pinned request clock, falling back to time.Now.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return v
	}
	return time.Now()
}
