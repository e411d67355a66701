package domain

import (
	"errors"
	"fmt"
)

// Errores de autenticación. Los strategy handlers los envuelven con fmt.Errorf("%w: ...").
var (
	ErrAPIKey               = errors.New("api key rejected")
	ErrAuthClaim            = errors.New("user has no claim")
	ErrTokenValidation      = errors.New("token validation failed")
	ErrAuthProvider         = errors.New("auth provider mismatch")
	ErrUserNotFound         = errors.New("user not found")
	ErrMissingOptionsHeader = errors.New("missing options header")
)

// AuthProviderError indica que la cuenta está ligada a otro proveedor.
type AuthProviderError struct {
	Username  string
	Expected  AuthProvider
	Attempted AuthProvider
}

func (e *AuthProviderError) Error() string {
	return fmt.Sprintf("user %s must authenticate with %s, not %s", e.Username, e.Expected, e.Attempted)
}

func (e *AuthProviderError) Is(target error) bool {
	return target == ErrAuthProvider
}
