package domain

import "strings"

// APIAuthorityPrefix separa las autoridades de sesiones API de las de la aplicación web.
const APIAuthorityPrefix = "api_"

const (
	AuthorityUnverified = "unverified"
	AuthorityVerified   = "verified"
	AuthorityDev        = "dev"
)

// Principal es la identidad autenticada instalada en el contexto de la request.
type Principal struct {
	Username    string
	Authorities []string
	API         bool

	passwordHash func() string
}

// NewPrincipal construye un Principal. passwordHash se evalúa solo cuando se pide.
func NewPrincipal(username string, authorities []string, api bool, passwordHash func() string) *Principal {
	auths := make([]string, len(authorities))
	copy(auths, authorities)
	return &Principal{
		Username:     username,
		Authorities:  auths,
		API:          api,
		passwordHash: passwordHash,
	}
}

// PasswordHash devuelve la credencial asociada, o vacío si no hay proveedor.
func (p *Principal) PasswordHash() string {
	if p == nil || p.passwordHash == nil {
		return ""
	}
	return p.passwordHash()
}

// HasAuthority reporta si el principal tiene la autoridad indicada.
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Authorities {
		if strings.EqualFold(a, authority) {
			return true
		}
	}
	return false
}
