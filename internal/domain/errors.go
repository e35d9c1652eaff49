package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity, collection or group does not exist
	ErrNotFound = errors.New("not found")
	// ErrMalformedRef indicates a lookup reference that is neither a valid key nor a URI
	ErrMalformedRef = errors.New("malformed reference")
	// ErrInvalidEntity indicates a field constraint violation
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrUnknownKind indicates a kind that is not registered
	ErrUnknownKind = errors.New("unknown entity kind")
	// ErrAlreadyExists indicates a unique name or URI is already taken
	ErrAlreadyExists = errors.New("already exists")
)
