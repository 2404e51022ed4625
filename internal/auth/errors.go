package auth

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrTenantMismatch indicates a resource belongs to a different factory.
	// It matches ErrForbidden under errors.Is.
	ErrTenantMismatch = fmt.Errorf("%w: tenant mismatch", ErrForbidden)
)
