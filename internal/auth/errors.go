package auth

import "github.com/cockroachdb/errors"

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrLandlordMismatch indicates the resource belongs to another landlord.
	ErrLandlordMismatch = errors.New("auth: landlord mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("auth: resource not found")
)
