package domain

import (
	"strings"
	"time"
)

// AuthProvider identifica el origen de la identidad de un usuario.
type AuthProvider string

const (
	AuthProviderLocal  AuthProvider = "LOCAL"
	AuthProviderGoogle AuthProvider = "GOOGLE"
	AuthProviderGithub AuthProvider = "GITHUB"
)

// ParseAuthProvider normaliza el nombre de un proveedor externo.
func ParseAuthProvider(s string) (AuthProvider, bool) {
	switch AuthProvider(strings.ToUpper(strings.TrimSpace(s))) {
	case AuthProviderLocal:
		return AuthProviderLocal, true
	case AuthProviderGoogle:
		return AuthProviderGoogle, true
	case AuthProviderGithub:
		return AuthProviderGithub, true
	}
	return "", false
}

type User struct {
	Username          string       `json:"username"`
	Email             string       `json:"email"`
	PasswordHash      string       `json:"-"`
	Verified          bool         `json:"verified"`
	AuthProvider      AuthProvider `json:"auth_provider"`
	AuthProviderID    string       `json:"-"`
	AuthClaim         string       `json:"-"`
	PwResetClaim      string       `json:"-"`
	PwResetAuthClaim  string       `json:"-"`
	VerificationClaim string       `json:"-"`
	CreatedAt         time.Time    `json:"created_at"`
}

// APIKey es la credencial de API de un usuario. No expira y no rota.
type APIKey struct {
	Username  string    `json:"-"`
	Key       string    `json:"api_key"`
	Secret    string    `json:"api_secret"`
	CreatedAt time.Time `json:"created_at"`
}
