package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stockroom-backend/pkg/logger"
)

// Logging emits request.start and request.complete. The completion line
// carries the matched route pattern and, for authenticated calls, the user
// and role that Auth resolved further down the chain.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, info := withRequestInfo(r.Context())
			ctx = logg.WithFields(ctx, map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			logg.Debug(ctx, "request.start")

			next.ServeHTTP(rec, r.WithContext(ctx))

			fields := info.fields()
			delete(fields, "request_id") // already on ctx via RequestID
			fields["status"] = rec.statusCode()
			fields["bytes"] = rec.bytes
			fields["duration_ms"] = time.Since(start).Milliseconds()
			if route := chi.RouteContext(ctx); route != nil && route.RoutePattern() != "" {
				fields["route"] = route.RoutePattern()
			}
			if rec.Header().Get(replayHeader) != "" {
				fields["idempotent_replay"] = true
			}

			ctx = logg.WithFields(ctx, fields)
			if rec.statusCode() >= http.StatusInternalServerError {
				logg.Warn(ctx, "request.complete")
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) statusCode() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
