package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/userauth/internal/common"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

const (
	msgInvalidInput       = "invalid input"
	msgInvalidCredentials = "invalid credentials"
	msgAccountDisabled    = "account disabled"
	msgDuplicateEmail     = "email is already registered"
	msgUserNotFound       = "user not found"
	msgMissingToken       = "not authorized, no token"
	msgInvalidToken       = "invalid token"
	msgTokenExpired       = "token expired"
	msgRouteNotFound      = "route not found"
	msgMethodNotAllowed   = "method not allowed"
	msgInternal           = "internal server error"
)

func writeJSON(w http.ResponseWriter, code int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, envelope{Success: true, Message: message, Data: data})
}

func writeErr(w http.ResponseWriter, code int, message string, errs ...string) {
	writeJSON(w, code, envelope{Success: false, Message: message, Errors: errs})
}

// writeServiceErr maps a service error to a status and a safe message.
// Anything unrecognized becomes a bare 500.
func writeServiceErr(w http.ResponseWriter, err error) {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErr(w, http.StatusBadRequest, msgInvalidInput, verr.Messages...)
	case errors.Is(err, common.ErrDuplicateEmail):
		writeErr(w, http.StatusConflict, msgDuplicateEmail)
	case errors.Is(err, common.ErrInvalidCredentials):
		writeErr(w, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, common.ErrAccountDisabled):
		writeErr(w, http.StatusUnauthorized, msgAccountDisabled)
	case errors.Is(err, common.ErrorNotFound):
		writeErr(w, http.StatusNotFound, msgUserNotFound)
	case errors.Is(err, common.ErrMissingToken):
		writeErr(w, http.StatusUnauthorized, msgMissingToken)
	case errors.Is(err, common.ErrTokenExpired):
		writeErr(w, http.StatusUnauthorized, msgTokenExpired)
	case errors.Is(err, common.ErrInvalidToken):
		writeErr(w, http.StatusUnauthorized, msgInvalidToken)
	default:
		writeErr(w, http.StatusInternalServerError, msgInternal)
	}
}
