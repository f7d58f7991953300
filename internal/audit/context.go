package audit

import (
	"context"
	"strings"
)

type ctxKey string

const remoteIPKey ctxKey = "audit_remote_ip"

// WithRemoteIP attaches the request's source address to the context so
// services deep in the call chain can stamp audit entries without threading
// transport metadata through every signature.
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, remoteIPKey, ip)
}

// RemoteIP extracts the source address from context, if present.
func RemoteIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(remoteIPKey).(string); ok {
		return v
	}
	return ""
}
