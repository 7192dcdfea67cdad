package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/ayo6706/poolcredit/internal/api/problem"
	"go.uber.org/zap"
)

// RecoverMiddleware converts panics into RFC 7807 responses. A panic inside a service
// transaction has already rolled the transaction back.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("route", routePattern(r)),
						zap.String("identity", IdentityFromContext(r.Context())),
						zap.String("request_id", TraceIDFromContext(r.Context())),
						zap.ByteString("stack", debug.Stack()),
					)

					problem.Write(w, r, http.StatusInternalServerError, problem.Type("internal-server-error"),
						http.StatusText(http.StatusInternalServerError), "unexpected server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
