package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"larkgate/pkg/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// CORS preflight answers.
const (
	corsAllowMethods = "GET,POST,OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
	corsMaxAge       = "86400"
)

// CORS resolves Access-Control-Allow-Origin against a list of allowed
// origins that can be replaced while the server runs.
type CORS struct {
	origins atomic.Pointer[[]string]
}

// NewCORS returns a CORS policy for origins.
func NewCORS(origins []string) *CORS {
	c := &CORS{}
	c.SetAllowedOrigins(origins)
	return c
}

// SetAllowedOrigins swaps the allowed origin list.
func (c *CORS) SetAllowedOrigins(origins []string) {
	cleaned := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	c.origins.Store(&cleaned)
}

// AllowOrigin returns the Access-Control-Allow-Origin value for a request
// from requestOrigin. Without a configured list, with a "*" entry or without
// an Origin header every origin is allowed. A listed origin is echoed;
// anything else gets the first listed origin.
func (c *CORS) AllowOrigin(requestOrigin string) string {
	origins := *c.origins.Load()
	if len(origins) == 0 || requestOrigin == "" {
		return "*"
	}
	for _, o := range origins {
		if o == "*" {
			return "*"
		}
	}
	for _, o := range origins {
		if o == requestOrigin {
			return o
		}
	}
	return origins[0]
}

// Middleware decorates responses with CORS headers and answers preflight
// requests itself.
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", c.AllowOrigin(r.Header.Get("Origin")))
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// RequestID tags every request with an id, reusing the caller's one when
// present, and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFrom returns the id assigned by RequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LogFunc receives one access log entry.
type LogFunc func(msg string, attrs ...slog.Attr)

type logData struct {
	status int
	size   int
}

type logWriter struct {
	http.ResponseWriter
	data logData
}

func (w *logWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.data.size += size
	return size, err
}

func (w *logWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.status = statusCode
}

// Flush keeps event streams working through the wrapper.
func (w *logWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *logWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// AccessLog logs one entry per request once the handler returns.
func AccessLog(log LogFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{status: http.StatusOK},
			}

			next.ServeHTTP(lw, r)

			log(
				"got HTTP request",
				slog.String("method", r.Method),
				slog.String("uri", loggedURI(r.URL)),
				slog.Duration("duration", time.Since(start)),
				slog.Int("status", lw.data.status),
				slog.Int("size", lw.data.size),
				slog.String("request_id", RequestIDFrom(r.Context())),
			)
		})
	}
}

// secretParams are query parameters that carry single-use codes or
// credentials and are redacted in the access log.
var secretParams = map[string]bool{
	"code":           true,
	"state":          true,
	"code_challenge": true,
	"code_verifier":  true,
	"access_token":   true,
	"refresh_token":  true,
	"client_secret":  true,
}

// loggedURI returns the path and query of u with secret parameters redacted.
func loggedURI(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return u.Path + "?<unparsable query>"
	}
	for k, vs := range q {
		if !secretParams[strings.ToLower(k)] {
			continue
		}
		for i, v := range vs {
			vs[i] = logging.Redact(v)
		}
	}
	return u.Path + "?" + q.Encode()
}
