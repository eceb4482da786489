package httpx

import (
	"errors"
	"net/http"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Denials
// surface as a bare "Forbidden" without naming the precedence rule that caused
// them; inconsistent-configuration errors surface as a generic internal error
// so probing callers learn nothing about role wiring.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidArgument):
		Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
