package domain

import "time"

// TokenPurpose identifica el uso de un token firmado.
type TokenPurpose string

const (
	PurposeAppAuth        TokenPurpose = "APP_AUTH"
	PurposeAppAuthRefresh TokenPurpose = "APP_AUTH_REFRESH"
	PurposePwAuth         TokenPurpose = "PW_AUTH"
	PurposePwReset        TokenPurpose = "PW_RESET"
	PurposeVerification   TokenPurpose = "VERIFICATION"
)

// ClaimField es la columna de claim del usuario contra la que valida un propósito.
type ClaimField string

const (
	ClaimAuth         ClaimField = "auth_claim"
	ClaimPwReset      ClaimField = "pw_reset_claim"
	ClaimPwResetAuth  ClaimField = "pw_reset_auth_claim"
	ClaimVerification ClaimField = "verification_claim"
)

type purposeSpec struct {
	name   string
	maxAge time.Duration
	field  ClaimField
}

var purposes = map[TokenPurpose]purposeSpec{
	PurposeAppAuth:        {name: "app_auth_token", maxAge: time.Hour, field: ClaimAuth},
	PurposeAppAuthRefresh: {name: "newsgears-token", maxAge: 30 * 24 * time.Hour, field: ClaimAuth},
	PurposePwAuth:         {name: "newsgears-pw-token", maxAge: 15 * time.Minute, field: ClaimPwResetAuth},
	PurposePwReset:        {name: "pw_reset_token", maxAge: 15 * time.Minute, field: ClaimPwReset},
	PurposeVerification:   {name: "verification_token", maxAge: 24 * time.Hour, field: ClaimVerification},
}

// Purposes devuelve todos los propósitos conocidos.
func Purposes() []TokenPurpose {
	return []TokenPurpose{PurposeAppAuth, PurposeAppAuthRefresh, PurposePwAuth, PurposePwReset, PurposeVerification}
}

// Valid reporta si el propósito es conocido.
func (p TokenPurpose) Valid() bool {
	_, ok := purposes[p]
	return ok
}

// Name es a la vez el nombre de la cookie y la clave del claim hash dentro del token.
func (p TokenPurpose) Name() string {
	return purposes[p].name
}

// DefaultMaxAge es la vida útil por defecto de los tokens del propósito.
func (p TokenPurpose) DefaultMaxAge() time.Duration {
	return purposes[p].maxAge
}

// ClaimField devuelve el campo del usuario que respalda el propósito.
func (p TokenPurpose) ClaimField() ClaimField {
	return purposes[p].field
}

// Claim devuelve el valor actual del campo indicado.
func (u User) Claim(field ClaimField) string {
	switch field {
	case ClaimAuth:
		return u.AuthClaim
	case ClaimPwReset:
		return u.PwResetClaim
	case ClaimPwResetAuth:
		return u.PwResetAuthClaim
	case ClaimVerification:
		return u.VerificationClaim
	}
	return ""
}

// SetClaim reemplaza el valor del campo indicado.
func (u *User) SetClaim(field ClaimField, value string) {
	switch field {
	case ClaimAuth:
		u.AuthClaim = value
	case ClaimPwReset:
		u.PwResetClaim = value
	case ClaimPwResetAuth:
		u.PwResetAuthClaim = value
	case ClaimVerification:
		u.VerificationClaim = value
	}
}

// Valid reporta si el campo es una columna de claim conocida.
func (f ClaimField) Valid() bool {
	switch f {
	case ClaimAuth, ClaimPwReset, ClaimPwResetAuth, ClaimVerification:
		return true
	}
	return false
}

// AppToken es un token firmado junto con su vida útil, usada como Max-Age de la cookie.
type AppToken struct {
	Value  string        `json:"token"`
	MaxAge time.Duration `json:"-"`
}

// MaxAgeSeconds expresa MaxAge en segundos enteros.
func (t AppToken) MaxAgeSeconds() int {
	return int(t.MaxAge / time.Second)
}
