package shared

import "context"

type (
	sessionContextKey      struct{}
	sessionErrorContextKey struct{}
)

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithSessionError records that the session store could not be read
// for this request.
func ContextWithSessionError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, sessionErrorContextKey{}, err)
}

// SessionErrorFromContext returns the error recorded by ContextWithSessionError.
func SessionErrorFromContext(ctx context.Context) error {
	err, _ := ctx.Value(sessionErrorContextKey{}).(error)
	return err
}
