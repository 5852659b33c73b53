// Package middleware provides the HTTP middleware chain.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
)

// RequestObserver receives one record per served request, implemented by the
// metrics collector.
type RequestObserver interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// LoggingMiddleware logs every request and feeds the request observer. Route
// patterns, not raw paths, are used as labels so path parameters do not
// explode cardinality.
type LoggingMiddleware struct {
	logger   logging.Logger
	observer RequestObserver
}

// NewLoggingMiddleware constructs the middleware. observer may be nil.
func NewLoggingMiddleware(log logging.Logger, observer RequestObserver) *LoggingMiddleware {
	return &LoggingMiddleware{logger: log, observer: observer}
}

// Handler wraps the next handler with logging and instrumentation.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(started)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}

		m.logger.Info("http request",
			logging.String("method", r.Method),
			logging.String("route", route),
			logging.Int("status", ww.Status()),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("elapsed", elapsed),
			logging.String("request_id", chimw.GetReqID(r.Context())),
		)
		if m.observer != nil {
			m.observer.ObserveHTTPRequest(r.Method, route, ww.Status(), elapsed)
		}
	})
}
