package service

import (
	"context"
	"sort"
	"strings"

	"feedgears/internal/domain"
	"feedgears/internal/repository"
)

// AuthorityService resuelve el conjunto de autoridades de un usuario.
// Las sesiones web reciben implícitas + concedidas; las de API solo implícitas con prefijo api_.
type AuthorityService struct {
	roles   repository.RoleRepository
	devMode bool
}

func NewAuthorityService(roles repository.RoleRepository, devMode bool) *AuthorityService {
	return &AuthorityService{roles: roles, devMode: devMode}
}

func (s *AuthorityService) implicit(user domain.User) []string {
	auths := []string{domain.AuthorityUnverified}
	if user.Verified {
		auths = append(auths, domain.AuthorityVerified)
	}
	if s.devMode {
		auths = append(auths, domain.AuthorityDev)
	}
	return auths
}

// ForWeb devuelve las autoridades de una sesión de aplicación.
func (s *AuthorityService) ForWeb(ctx context.Context, user domain.User) ([]string, error) {
	set := make(map[string]struct{})
	for _, a := range s.implicit(user) {
		set[a] = struct{}{}
	}
	if s.roles != nil {
		granted, err := s.roles.FeaturesForUser(ctx, user.Username)
		if err != nil {
			return nil, err
		}
		for _, f := range granted {
			if strings.HasPrefix(f, domain.APIAuthorityPrefix) {
				continue
			}
			set[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// ForAPI devuelve las autoridades de una sesión autenticada por API key.
func (s *AuthorityService) ForAPI(user domain.User) []string {
	implicit := s.implicit(user)
	out := make([]string, 0, len(implicit))
	for _, a := range implicit {
		out = append(out, domain.APIAuthorityPrefix+a)
	}
	return out
}
