package httputil

import (
	"context"
	"net/http"
)

// Unexported key type so no other package can collide with our context
// values.
type ctxKey int

const authUserKey ctxKey = iota

// WithUserID returns a shallow copy of the request whose context carries
// the authenticated user's id. The auth middleware is the only writer.
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), authUserKey, userID))
}

// GetUserID returns the authenticated user's id from the request context,
// or "" for requests that never passed through the auth middleware.
func GetUserID(r *http.Request) string {
	id, _ := r.Context().Value(authUserKey).(string)
	return id
}
