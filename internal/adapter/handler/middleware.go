package handler

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/event-inventory/internal/auth"
)

func (h *HTTPHandler) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			h.writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		staff, err := h.auth.Verify(token)
		if err != nil {
			h.logger.Debug("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			h.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithStaff(r.Context(), staff)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
