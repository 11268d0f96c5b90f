package middleware

import (
	"context"
	"net/http"
)

func withRequestID(r *http.Request, id string) context.Context {
	return context.WithValue(r.Context(), requestIDKey{}, id)
}

// RequestIDFrom returns the id assigned by RequestID, if any.
func RequestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}
