package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-driver-sdk/pkg/driver"
)

// headerRequestID carries the correlation ID in both directions.
const headerRequestID = "X-Request-ID"

type scopeKey struct{}

// requestScope collects what a request resolved, for the access log.
// Handlers fill device once they have looked it up.
type requestScope struct {
	id     string
	device *driver.Device
}

func scopeFrom(ctx context.Context) *requestScope {
	if sc, ok := ctx.Value(scopeKey{}).(*requestScope); ok {
		return sc
	}
	return &requestScope{}
}

// noteDevice records the device a handler resolved.
func noteDevice(ctx context.Context, d driver.Device) {
	scopeFrom(ctx).device = &d
}

// scopeMiddleware opens the request scope. A client-supplied X-Request-ID
// is kept; otherwise a UUID is assigned.
func (s *Server) scopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		ctx := context.WithValue(r.Context(), scopeKey{}, &requestScope{id: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLogMiddleware logs each request against the driver module and,
// for device routes, the device it addressed.
func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		attrs := append(s.requestAttrs(r),
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		s.logger.Debug("api request", attrs...)
	})
}

// recoveryMiddleware turns a handler panic into a 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				attrs := append(s.requestAttrs(r), "panic", p)
				s.logger.Error("api handler panicked", attrs...)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestAttrs names the module, route and device a request concerns.
func (s *Server) requestAttrs(r *http.Request) []any {
	sc := scopeFrom(r.Context())
	attrs := []any{
		"module", s.driver.ModuleName(),
		"request_id", sc.id,
		"method", r.Method,
		"route", routePattern(r),
	}
	if sc.device != nil {
		return append(attrs,
			"handle", int64(sc.device.Handle),
			"cloud_id", sc.device.CloudID,
			"product_key", sc.device.ProductKey,
			"device", sc.device.DeviceName,
		)
	}
	if h := chi.URLParam(r, "handle"); h != "" {
		attrs = append(attrs, "handle", h)
	}
	return attrs
}

// routePattern returns the matched chi pattern, or the raw path before
// routing has happened.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
