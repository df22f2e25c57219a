package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/safelog/internal/common"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidNonce),
		errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidSignature),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error(ctx, "request failed", "error", err)
		detail = "internal error"
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

// decode reads a JSON body into v. Bodies cut off by limitBody surface as
// common.ErrPayloadTooLarge.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return common.ErrPayloadTooLarge
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", common.ErrValidation)
		}
		return fmt.Errorf("%w: malformed body", common.ErrValidation)
	}
	return nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s", common.ErrValidation, name)
	}
	return v, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s", common.ErrValidation, name)
	}
	return v, nil
}
