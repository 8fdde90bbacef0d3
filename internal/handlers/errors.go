package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/springboard/internal/models"
	pkgauth "github.com/BradenHooton/springboard/pkg/auth"
	pkghttp "github.com/BradenHooton/springboard/pkg/http"
)

// errorMapping pairs a service error with its stable HTTP representation.
type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorTable is checked in order with errors.Is. Anything unmatched is a 500.
var errorTable = []errorMapping{
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Incorrect email or password"},
	{models.ErrAccountInactive, http.StatusForbidden, "account_inactive", "Inactive user"},
	{models.ErrAccountDeleted, http.StatusForbidden, "account_deleted", "User account has been deleted"},
	{models.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "Could not validate credentials"},
	{models.ErrUnverifiedEmail, http.StatusBadRequest, "unverified_email", "Email is not verified by the provider"},
	{models.ErrSelfActionForbidden, http.StatusBadRequest, "self_action_forbidden", "Cannot perform this action on your own account"},
	{models.ErrLastAdminProtected, http.StatusBadRequest, "last_admin_protected", "Cannot remove the last active admin"},
	{models.ErrAlreadyHasPassword, http.StatusBadRequest, "already_has_password", "Account already has a password"},
	{models.ErrOAuthProvider, http.StatusUnauthorized, "oauth_failed", "OAuth authentication failed"},
	{models.ErrNotConfigured, http.StatusNotImplemented, "not_configured", "OAuth provider is not configured"},
	{models.ErrConflict, http.StatusConflict, "conflict", "Email already registered"},
	{models.ErrNotFound, http.StatusNotFound, "not_found", "Resource not found"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden", "Not enough permissions"},
	{models.ErrBadRequest, http.StatusBadRequest, "bad_request", "Invalid request"},
}

// lookupError returns the mapping for err, or false for unexpected errors.
func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return errorMapping{}, false
}

// WriteServiceError translates a service error into a JSON error response.
func WriteServiceError(w http.ResponseWriter, err error) {
	var pwErr *pkgauth.PasswordValidationError
	if errors.As(err, &pwErr) {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "invalid_password", pwErr.Error(), strings.Join(pwErr.Errors, "; "))
		return
	}

	m, ok := lookupError(err)
	if !ok {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if m.err == models.ErrBadRequest {
		// Service-level validation messages are safe to show.
		pkghttp.WriteBadRequest(w, strings.TrimSuffix(err.Error(), ": "+models.ErrBadRequest.Error()))
		return
	}
	pkghttp.WriteError(w, m.status, m.code, m.message)
}

// userFacingMessage is the text shown on the OAuth error redirect.
func userFacingMessage(err error) string {
	if m, ok := lookupError(err); ok {
		return m.message
	}
	return "Authentication failed"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	pkghttp.WriteJSON(w, status, v)
}

// decodeJSON decodes the request body into dst and runs struct validation.
// It writes the 400 response itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}
