package middlewares

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/constants"
)

// AttachRequestID copies the request id assigned by chi's RequestID
// middleware into the context key the logger and the broker read, so the id
// is logged with every record and travels in the headers of every message
// published while serving the request.
func AttachRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = r.Header.Get(middleware.RequestIDHeader)
		}
		if requestID != "" {
			w.Header().Set(middleware.RequestIDHeader, requestID)
		}

		ctx := context.WithValue(r.Context(), constants.ContextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
