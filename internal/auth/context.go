package auth

import "context"

type contextKey struct{}

// AuthContext is the caller identity attached to a request.
type AuthContext struct {
	UserID string
	Guest  bool
	Role   string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}

// IsMember reports whether the caller is signed in with a full account.
func IsMember(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && ac.UserID != "" && !ac.Guest
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == "admin"
}
