package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mssola/useragent"

	"reconciler/pkg/requestcontext"
)

// AccessLog logs one line per request once the response is written. Run it
// after the request id and client metadata middleware.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			ctx := r.Context()
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []any{
				"request_id", requestcontext.RequestID(ctx),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", requestcontext.ClientIP(ctx),
			}
			if ua := requestcontext.UserAgent(ctx); ua != "" {
				parsed := useragent.New(ua)
				browser, version := parsed.Browser()
				attrs = append(attrs,
					"user_agent.browser", browser,
					"user_agent.version", version,
					"user_agent.bot", parsed.Bot(),
				)
			}
			logger.Log(ctx, level, "http request", attrs...)
		})
	}
}
