package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
	"github.com/dmitrijs2005/stagekeeper/internal/logging"
	"github.com/dmitrijs2005/stagekeeper/internal/server/auth"
	"github.com/go-chi/chi/v5/middleware"
)

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			args := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			}
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				logger.Debug(r.Context(), "request completed", args...)
			} else {
				logger.Info(r.Context(), "request completed", args...)
			}
		})
	}
}

// tokenFrom reads the access token from "Authorization: Bearer" or the
// access_token header used by gRPC clients.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get(common.AccessTokenHeaderName)
}

// requireSession rejects requests without a valid session token and stores
// the session id in the request context.
func requireSession(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFrom(r)
			if token == "" {
				WriteProblem(w, http.StatusUnauthorized, "missing token")
				return
			}
			sessionID, err := auth.GetSessionIDFromToken(token, secret)
			if err != nil {
				WriteProblem(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sessionID)))
		})
	}
}
