package shared

import "errors"

var (
	// ErrUnauthenticated indicates no actor could be resolved for the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the actor was resolved but lacks authority.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates a malformed or missing request field.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInconsistent indicates corrupted authorization configuration, such as a
	// cyclic role inheritance chain. It is never a normal deny and must be logged
	// at error severity wherever it surfaces.
	ErrInconsistent = errors.New("inconsistent configuration")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
