package middleware

import (
	"net/http"
	"time"

	"github.com/dtorcivia/calbook/internal/crypto"
	"github.com/dtorcivia/calbook/internal/util"
)

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Logging returns middleware that logs HTTP requests. Query strings are
// not logged: authorization callbacks carry codes in them.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		logger := util.GetDefaultLogger().WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"size":        rw.size,
			"client_ip":   clientIP,
			"request_id":  w.Header().Get("X-Request-ID"),
		})

		switch {
		case rw.statusCode >= 500:
			logger.Error("HTTP request")
		case rw.statusCode >= 400:
			logger.Warn("HTTP request")
		default:
			logger.Info("HTTP request")
		}
	})
}

// RequestID returns middleware that adds a unique request ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			var err error
			requestID, err = crypto.GenerateNanoID("req_", 16)
			if err != nil {
				requestID = "unknown"
			}
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}
