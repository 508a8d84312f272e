// Package httpx holds the JSON response helpers and server lifecycle shared
// by the service HTTP handlers.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Number renders d as a JSON number instead of a quoted string.
func Number(d decimal.Decimal) json.Number { return json.Number(d.String()) }

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// StatusFor maps the shared error kinds onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case apperr.IsArgument(err):
		return http.StatusBadRequest
	case apperr.IsAuthorization(err):
		return http.StatusForbidden
	case apperr.IsNotFound(err):
		return http.StatusNotFound
	case apperr.IsConflict(err):
		return http.StatusConflict
	case apperr.IsTransport(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MessageFor hides the text of unexpected errors from clients.
func MessageFor(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

// DecodeJSON rejects bodies with unknown fields or trailing data.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Argument("body", err.Error())
	}
	if dec.More() {
		return apperr.Argument("body", "unexpected data after JSON object")
	}
	return nil
}

// Healthz answers 200 when every check passes, 503 otherwise.
func Healthz(checks map[string]func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(); err != nil {
				status = http.StatusServiceUnavailable
				out[name] = err.Error()
				continue
			}
			out[name] = "ok"
		}
		WriteJSON(w, status, out)
	}
}
