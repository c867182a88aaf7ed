package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	terrors "github.com/temoa-dev/temoa/internal/errors"
)

// Synthetic codes for failures outside the engine taxonomy.
const (
	codeInternal    = "INTERNAL"
	codeRateLimited = "RATE_LIMITED"
)

// errorBody is the failure response shape. A response carries either a
// result or this, never both.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response_encode_failed", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	msg := err.Error()
	var te *terrors.TemoaError
	if errors.As(err, &te) {
		msg = te.Message
		if te.Suggestion != "" {
			msg += ". " + te.Suggestion
		}
	}

	attrs := []any{
		slog.String("request_id", requestIDFrom(r.Context())),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("code", code),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request_failed", attrs...)
	} else {
		s.logger.Warn("request_failed", attrs...)
	}

	s.writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// statusFor maps an error to an HTTP status and a response code. A
// deadline anywhere in the chain is a query timeout regardless of which
// stage wrapped it.
func statusFor(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, terrors.ErrCodeQueryTimeout
	}

	var te *terrors.TemoaError
	if !errors.As(err, &te) {
		return http.StatusInternalServerError, codeInternal
	}

	switch te.Code {
	case terrors.ErrCodeInvalidParam, terrors.ErrCodeUnknownProfile, terrors.ErrCodeConfigInvalid:
		return http.StatusBadRequest, te.Code
	case terrors.ErrCodeUnknownVault, terrors.ErrCodeVaultNotFound, terrors.ErrCodeFileUnreadable:
		return http.StatusNotFound, te.Code
	case terrors.ErrCodeIndexLocked:
		return http.StatusServiceUnavailable, te.Code
	case terrors.ErrCodeQueryTimeout, terrors.ErrCodeStageTimeout:
		return http.StatusGatewayTimeout, te.Code
	default:
		return http.StatusInternalServerError, te.Code
	}
}
