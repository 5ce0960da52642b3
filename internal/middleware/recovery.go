package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/shopfleet/service_layer/internal/httputil"
	"github.com/shopfleet/service_layer/internal/logging"
)

// Recovery turns a handler panic into a 500 for that request only.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := wrap(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.ForContext(r.Context()).
					WithField("panic", fmt.Sprint(rec)).
					WithField("stack", string(debug.Stack())).
					Error("handler panicked")
				if !wrapped.written {
					httputil.InternalError(wrapped, fmt.Errorf("panic: %v", rec))
				}
			}()
			next.ServeHTTP(wrapped, r)
		})
	}
}
