package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	requestLogKey contextKey = "request_log"
)

// RequestIDMiddleware reuses the caller's X-Request-ID or mints one, and
// echoes it back so a booking attempt can be traced across the logs.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

// requestLog collects fields handlers learn while serving, such as the
// appointment URL decoded from the body.
type requestLog struct {
	href string
}

// annotateHref tags the request's log line with the appointment it touched.
func annotateHref(r *http.Request, href string) {
	if rl, ok := r.Context().Value(requestLogKey).(*requestLog); ok {
		rl.href = href
	}
}

// LoggingMiddleware writes one line per request. Booking routes add the
// record href; failures are logged at warn or error by status class.
func LoggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rl := &requestLog{}
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), requestLogKey, rl)))

			fields := []any{
				"request_id", GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if rl.href != "" {
				fields = append(fields, "href", rl.href)
			}

			switch {
			case sw.status >= http.StatusInternalServerError:
				logger.Error("request failed", fields...)
			case sw.status >= http.StatusBadRequest:
				logger.Warn("request rejected", fields...)
			default:
				logger.Info("request completed", fields...)
			}
		})
	}
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
