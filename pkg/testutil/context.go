package testutil

import (
	"context"
	"net/http"

	"civicledger/internal/platform/middleware"
)

// WithRequestID adds a request ID to the request context, simulating the
// RequestID middleware for handlers tested in isolation.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyRequestID, requestID)
	return req.WithContext(ctx)
}
