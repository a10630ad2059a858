// Package api implements the daemon's command surface: a JSON HTTP API
// served over the daemon's Unix domain socket. Transient CLI invocations
// are the only intended clients; there is no TCP listener.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chatsync-dev/chatsync/internal/platform"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

// writeError maps a classified platform error to its HTTP rendering.
// Unclassified errors are treated as bad requests (unknown platform,
// malformed input) rather than server faults.
func writeError(w http.ResponseWriter, err error) {
	var pe *platform.Error
	if errors.As(err, &pe) {
		writeErrorCode(w, statusFor(pe.Code), string(pe.Code), pe.Message)
		return
	}
	writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
}

func statusFor(code platform.Code) int {
	switch code {
	case platform.CodeAuthRequired:
		return http.StatusUnauthorized
	case platform.CodeNotFound:
		return http.StatusNotFound
	case platform.CodeRateLimited:
		return http.StatusTooManyRequests
	case platform.CodeNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// RequestLogger tags every request with an id and logs its outcome.
func RequestLogger(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			zap.String("requestId", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
