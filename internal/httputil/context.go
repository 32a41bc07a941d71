package httputil

import (
	"context"
	"net/http"
)

// Context key type to avoid collisions
type contextKey string

const (
	actorIDKey contextKey = "actorID"
	isAdminKey contextKey = "isAdmin"
)

// WithActor adds the authenticated actor to the request context.
func WithActor(r *http.Request, actorID string, isAdmin bool) *http.Request {
	ctx := context.WithValue(r.Context(), actorIDKey, actorID)
	ctx = context.WithValue(ctx, isAdminKey, isAdmin)
	return r.WithContext(ctx)
}

// GetActorID retrieves the actor ID from context, returns empty string if
// not found.
func GetActorID(r *http.Request) string {
	actorID, _ := r.Context().Value(actorIDKey).(string)
	return actorID
}

// IsAdmin reports whether the authenticated actor carries the admin claim.
func IsAdmin(r *http.Request) bool {
	isAdmin, _ := r.Context().Value(isAdminKey).(bool)
	return isAdmin
}
