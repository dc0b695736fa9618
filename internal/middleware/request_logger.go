package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"apexdispatch/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const CorrelationHeader = "X-Correlation-ID"

func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
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
	return s.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLogger tags every request with a correlation id and logs its outcome.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(CorrelationHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, requestID)

		entry := logging.Log.WithField("request_id", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = logging.WithEntry(ctx, entry)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		fields := entry.WithFields(logrus.Fields{
			"http_method": r.Method,
			"uri":         r.URL.Path,
			"status_code": status,
			"latency_ms":  time.Since(start).Milliseconds(),
			"client_ip":   r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		})
		switch {
		case status >= 500:
			fields.Error("Request completed with server error")
		case status >= 400:
			fields.Warn("Request completed with client error")
		default:
			fields.Info("Request completed")
		}
	})
}
