package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"leadership-portal/internal/observability"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger copies chi's request ID into the logging context and writes
// one structured line per request. Mount it after chi's RequestID.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := observability.WithRequestID(r.Context(), chimiddleware.GetReqID(r.Context()))
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			observability.FromContext(ctx).Log(ctx, level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr))
		})
	}
}
