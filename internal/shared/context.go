package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// Operator identifies the authenticated caller for audit attribution. The
// stock-update protocol never authenticates; it only records this identity.
type Operator struct {
	ID   int64
	Name string
}

// OperatorFromSession builds the operator identity stored at login time.
func OperatorFromSession(sess *Session) Operator {
	if sess == nil {
		return Operator{}
	}
	return Operator{ID: sess.UserID(), Name: sess.Get(SessionKeyUserName)}
}
