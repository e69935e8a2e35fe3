package middleware

import "context"

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

const ctxRequestInfo contextKey = "request_info"

// requestInfo is shared by pointer down the middleware chain. Inner
// middleware fill it in so the outer ones can log who made the request.
type requestInfo struct {
	requestID string
	userID    string
	role      string
}

// withRequestInfo returns ctx carrying a requestInfo, reusing one that an
// outer middleware already attached.
func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	if info := requestInfoFrom(ctx); info != nil {
		return ctx, info
	}
	info := &requestInfo{}
	return context.WithValue(ctx, ctxRequestInfo, info), info
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(ctxRequestInfo).(*requestInfo)
	return info
}

func (i *requestInfo) fields() map[string]any {
	out := map[string]any{}
	if i == nil {
		return out
	}
	if i.requestID != "" {
		out["request_id"] = i.requestID
	}
	if i.userID != "" {
		out["user_id"] = i.userID
		out["actor_role"] = i.role
	}
	return out
}
