package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

const codeBodyTooLarge = "REQUEST_TOO_LARGE"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	e, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	if e.Code == codeBodyTooLarge {
		return http.StatusRequestEntityTooLarge
	}

	switch e.Type {
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeLimitExceeded:
		return http.StatusConflict
	case errors.ErrorTypeUnauthorized:
		return http.StatusForbidden
	case errors.ErrorTypeValidation, errors.ErrorTypeProtocol:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	s.errors.HandleWithLogger(ctx, err, logging.FromContext(ctx).WithContext(ctx).Logger)

	resp := domain.ErrorResponse{Code: "INTERNAL", Message: http.StatusText(http.StatusInternalServerError)}
	if e, ok := errors.As(err); ok {
		resp = domain.ErrorResponse{Code: e.Code, Message: e.Message, Details: e.Details}
	}
	writeJSON(w, statusFor(err), resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return errors.InvalidRequest("request body is required")
	}

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.Wrap(err, errors.ErrorTypeValidation, codeBodyTooLarge, "request body too large")
		}
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.CodeInvalidRequest, "invalid request body")
	}
	return nil
}
