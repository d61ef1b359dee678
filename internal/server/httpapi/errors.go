package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tokengate/internal/common"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Success bool   `json:"success"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

var errBadRequest = errors.New("invalid request body")

type errorKind struct {
	err     error
	status  int
	code    string
	message string
}

// kinds is ordered; the first match wins. Messages are fixed per kind and
// never echo internal detail.
var kinds = []errorKind{
	{common.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials"},
	{common.ErrMissingToken, http.StatusUnauthorized, "no_auth_header", "Authorization header missing"},
	{common.ErrMalformedToken, http.StatusUnauthorized, "invalid_token", "Invalid token format"},
	{common.ErrBadSignature, http.StatusUnauthorized, "invalid_signature", "Invalid token signature"},
	{common.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "Token has expired"},
	{common.ErrUserNotFound, http.StatusNotFound, "user_not_found", "User not found"},
	{common.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable", "Service temporarily unavailable"},
	{common.ErrPermissionDenied, http.StatusForbidden, "permission_denied", "You do not have permission to perform this action"},
	{common.ErrInvalidNonce, http.StatusForbidden, "invalid_nonce", "Security check failed"},
	{common.ErrConfirmationRequired, http.StatusBadRequest, "confirmation_required", "Rotation must be confirmed"},
	{errBadRequest, http.StatusBadRequest, "bad_request", "Invalid request body"},
}

var internalKind = errorKind{nil, http.StatusInternalServerError, "internal_error", "Internal server error"}

func kindFor(err error) errorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k
		}
	}
	return internalKind
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	return kindFor(err).status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	k := kindFor(err)
	writeJSON(w, k.status, errorBody{Success: false, Code: k.code, Message: k.message})
}
