package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"feedgears/internal/domain"
)

// MemoryStore implementa los tres repositorios en memoria para tests y modo local.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	apiKeys  map[string]domain.APIKey
	features map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		apiKeys:  make(map[string]domain.APIKey),
		features: make(map[string][]string),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return ErrDuplicateUser
	}
	for _, u := range s.users {
		if user.Email != "" && strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicateUser
		}
	}
	s.users[user.Username] = user
	return nil
}

func (s *MemoryStore) FindUserByName(_ context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *MemoryStore) FindUserByAPIKey(_ context.Context, key string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.apiKeys {
		if k.Key == key {
			if u, ok := s.users[k.Username]; ok {
				return u, nil
			}
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *MemoryStore) UpdateClaim(_ context.Context, username string, field domain.ClaimField, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.SetClaim(field, value)
	s.users[username] = u
	return nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	s.users[username] = u
	return nil
}

func (s *MemoryStore) SetVerified(_ context.Context, username string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Verified = verified
	s.users[username] = u
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.users, username)
	delete(s.apiKeys, username)
	delete(s.features, username)
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, key domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[key.Username] = key
	return nil
}

func (s *MemoryStore) FindAPIKeyByUsername(_ context.Context, username string) (domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.apiKeys[username]
	if !ok {
		return domain.APIKey{}, ErrAPIKeyNotFound
	}
	return k, nil
}

// GrantFeatures asigna features a un usuario.
func (s *MemoryStore) GrantFeatures(username string, features ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[username] = append(s.features[username], features...)
}

func (s *MemoryStore) FeaturesForUser(_ context.Context, username string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]string(nil), s.features[username]...)
	sort.Strings(out)
	return out, nil
}

var (
	_ UserRepository   = (*MemoryStore)(nil)
	_ APIKeyRepository = (*MemoryStore)(nil)
	_ RoleRepository   = (*MemoryStore)(nil)
	_ UserRepository   = (*PgUserRepository)(nil)
	_ APIKeyRepository = (*PgAPIKeyRepository)(nil)
	_ RoleRepository   = (*PgRoleRepository)(nil)
)
