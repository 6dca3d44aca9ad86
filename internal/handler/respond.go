package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/attaboy/bankroll/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response, detecting domain.AppError anywhere
// in the chain for status codes.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		RespondJSON(w, appErr.Status, map[string]string{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, map[string]string{
		"code":    "INTERNAL_ERROR",
		"message": "internal server error",
	})
}

// DecodeJSON reads and decodes a JSON request body into dst. Bodies over
// 1 MiB are rejected.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
}

// decodeBody decodes the request body, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := DecodeJSON(r, dst); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return false
	}
	return true
}

// addressParam reads and validates an address URL parameter.
func addressParam(r *http.Request, name string) (domain.Address, error) {
	addr := domain.NormalizeAddress(chi.URLParam(r, name))
	if err := domain.ValidateAddress(addr); err != nil {
		return "", err
	}
	return addr, nil
}

// tokenQuery reads the token query parameter, defaulting to native.
func tokenQuery(r *http.Request) (domain.Address, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		return domain.NativeToken, nil
	}
	addr := domain.NormalizeAddress(raw)
	if err := domain.ValidateAddress(addr); err != nil {
		return "", err
	}
	return addr, nil
}

// uintQuery reads an integer query parameter in [1, limit] with a default.
func uintQuery(r *http.Request, name string, def, limit uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, domain.ErrValidation("invalid " + name)
	}
	if n == 0 || n > limit {
		return 0, domain.ErrValidation(fmt.Sprintf("%s must be between 1 and %d", name, limit))
	}
	return n, nil
}
