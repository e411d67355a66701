package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"feedgears/internal/domain"
	"feedgears/internal/email"
	"feedgears/internal/repository"
)

// AccountService coordina los flujos de cuenta que emiten y rotan claims.
type AccountService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	apiKeys  repository.APIKeyRepository
	claims   *ClaimService
	sender   email.Sender
	validate *validator.Validate
	now      func() time.Time
}

func NewAccountService(
	logger *zap.Logger,
	users repository.UserRepository,
	apiKeys repository.APIKeyRepository,
	claims *ClaimService,
	sender email.Sender,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		logger:   logger,
		users:    users,
		apiKeys:  apiKeys,
		claims:   claims,
		sender:   sender,
		validate: validator.New(),
		now:      time.Now,
	}
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
	ErrOAuthInvalid       = errors.New("oauth data invalid")
	ErrOAuthIdentity      = errors.New("oauth identity does not match account")
)

const (
	apiSecretLength      = 32
	oauthUsernameRetries = 5
)

type RegisterInput struct {
	Username string `validate:"required,alphanum,min=3,max=100"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72"`
}

// Register crea un usuario local con su API key y envía el correo de verificación.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (domain.User, domain.APIKey, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = normalizeEmail(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return domain.User{}, domain.APIKey{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, domain.APIKey{}, err
	}
	user := domain.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
		AuthProvider: domain.AuthProviderLocal,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return domain.User{}, domain.APIKey{}, err
	}
	key, err := s.createAPIKey(ctx, user.Username)
	if err != nil {
		s.rollbackUser(ctx, user.Username)
		return domain.User{}, domain.APIKey{}, err
	}

	token, err := s.claims.FinalizeAndIssue(ctx, domain.PurposeVerification, user.Username)
	if err != nil {
		s.rollbackUser(ctx, user.Username)
		return domain.User{}, domain.APIKey{}, err
	}
	if err := s.sender.SendVerification(ctx, user.Email, user.Username, token, key); err != nil {
		s.logger.Warn("send verification email failed", zap.Error(err), zap.String("username", user.Username))
	}
	return user, key, nil
}

// Login verifica la contraseña y emite una cookie de refresh nueva, invalidando las anteriores.
func (s *AccountService) Login(ctx context.Context, username, password string) (domain.AppToken, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.AppToken{}, ErrInvalidCredentials
	}
	user, err := s.users.FindUserByName(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.AppToken{}, ErrInvalidCredentials
		}
		return domain.AppToken{}, err
	}
	if user.AuthProvider != domain.AuthProviderLocal {
		return domain.AppToken{}, &domain.AuthProviderError{
			Username:  user.Username,
			Expected:  user.AuthProvider,
			Attempted: domain.AuthProviderLocal,
		}
	}
	if user.PasswordHash == "" {
		return domain.AppToken{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.AppToken{}, ErrInvalidCredentials
	}
	return s.claims.FinalizeAndIssue(ctx, domain.PurposeAppAuthRefresh, user.Username)
}

// CurrentUserToken emite un token de aplicación contra el auth claim vigente.
// Sin claim previo (modo single-user) no hay tokens que invalidar, así que se crea uno.
func (s *AccountService) CurrentUserToken(ctx context.Context, username string) (domain.AppToken, error) {
	token, err := s.claims.Issue(ctx, domain.PurposeAppAuth, username)
	if errors.Is(err, domain.ErrAuthClaim) {
		return s.claims.FinalizeAndIssue(ctx, domain.PurposeAppAuth, username)
	}
	return token, err
}

// CurrentUser devuelve el usuario autenticado tal como está persistido.
func (s *AccountService) CurrentUser(ctx context.Context, username string) (domain.User, error) {
	return s.users.FindUserByName(ctx, username)
}

// Logout rota el auth claim: cierra la sesión en todos los dispositivos.
func (s *AccountService) Logout(ctx context.Context, username string) error {
	_, err := s.claims.Finalize(ctx, domain.PurposeAppAuth, username)
	return err
}

// InitPasswordReset envía el enlace de reset si el email coincide con el del usuario.
func (s *AccountService) InitPasswordReset(ctx context.Context, username, emailAddr string) error {
	user, err := s.users.FindUserByName(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if !strings.EqualFold(user.Email, normalizeEmail(emailAddr)) {
		return domain.ErrUserNotFound
	}
	token, err := s.claims.FinalizeAndIssue(ctx, domain.PurposePwReset, user.Username)
	if err != nil {
		return err
	}
	if err := s.sender.SendPasswordReset(ctx, user.Email, user.Username, token); err != nil {
		s.logger.Warn("send password reset email failed", zap.Error(err), zap.String("username", user.Username))
	}
	return nil
}

// ContinuePasswordReset consume el token de reset y emite la sesión corta de cambio de contraseña.
func (s *AccountService) ContinuePasswordReset(ctx context.Context, token string) (domain.AppToken, error) {
	user, err := s.claims.Validate(ctx, domain.PurposePwReset, token)
	if err != nil {
		return domain.AppToken{}, err
	}
	if _, err := s.claims.Finalize(ctx, domain.PurposePwReset, user.Username); err != nil {
		return domain.AppToken{}, err
	}
	return s.claims.FinalizeAndIssue(ctx, domain.PurposePwAuth, user.Username)
}

// UpdatePassword guarda la contraseña nueva e invalida la sesión de reset y las de aplicación.
func (s *AccountService) UpdatePassword(ctx context.Context, username, newPassword string) error {
	if err := s.validate.Var(newPassword, "required,min=8,max=72"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, username, string(hash)); err != nil {
		return err
	}
	if _, err := s.claims.Finalize(ctx, domain.PurposePwAuth, username); err != nil {
		return err
	}
	_, err = s.claims.Finalize(ctx, domain.PurposeAppAuth, username)
	return err
}

// Verify consume el token de verificación y marca la cuenta como verificada.
func (s *AccountService) Verify(ctx context.Context, token string) (domain.User, error) {
	user, err := s.claims.Validate(ctx, domain.PurposeVerification, token)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.claims.Finalize(ctx, domain.PurposeVerification, user.Username); err != nil {
		return domain.User{}, err
	}
	if err := s.users.SetVerified(ctx, user.Username, true); err != nil {
		return domain.User{}, err
	}
	user.Verified = true
	return user, nil
}

// RecoverAPIKey reenvía la API key al email registrado.
func (s *AccountService) RecoverAPIKey(ctx context.Context, username, emailAddr string) error {
	user, err := s.users.FindUserByName(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if !strings.EqualFold(user.Email, normalizeEmail(emailAddr)) {
		return domain.ErrUserNotFound
	}
	key, err := s.apiKeys.FindAPIKeyByUsername(ctx, user.Username)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAPIKey, err)
	}
	if err := s.sender.SendAPIKeyRecovery(ctx, user.Email, user.Username, key); err != nil {
		s.logger.Warn("send api key recovery email failed", zap.Error(err), zap.String("username", user.Username))
	}
	return nil
}

// OAuthIdentity es una identidad ya verificada por el proveedor externo.
type OAuthIdentity struct {
	Provider   string
	ProviderID string
	Email      string
	Username   string
}

// OAuthLogin crea o recupera la cuenta ligada al proveedor y emite la cookie de refresh.
// Una cuenta existente con el mismo email y otro proveedor falla con AuthProviderError.
func (s *AccountService) OAuthLogin(ctx context.Context, identity OAuthIdentity) (domain.User, domain.AppToken, error) {
	provider, ok := domain.ParseAuthProvider(identity.Provider)
	emailAddr := normalizeEmail(identity.Email)
	if !ok || provider == domain.AuthProviderLocal || strings.TrimSpace(identity.ProviderID) == "" || emailAddr == "" {
		return domain.User{}, domain.AppToken{}, ErrOAuthInvalid
	}

	user, err := s.users.FindUserByEmail(ctx, emailAddr)
	switch {
	case err == nil:
		if user.AuthProvider != provider {
			return domain.User{}, domain.AppToken{}, &domain.AuthProviderError{
				Username:  user.Username,
				Expected:  user.AuthProvider,
				Attempted: provider,
			}
		}
		if user.AuthProviderID != strings.TrimSpace(identity.ProviderID) {
			return domain.User{}, domain.AppToken{}, fmt.Errorf("%w: %s", ErrOAuthIdentity, user.Username)
		}
	case errors.Is(err, domain.ErrUserNotFound):
		user, err = s.createOAuthUser(ctx, provider, identity, emailAddr)
		if err != nil {
			return domain.User{}, domain.AppToken{}, err
		}
	default:
		return domain.User{}, domain.AppToken{}, err
	}

	token, err := s.claims.FinalizeAndIssue(ctx, domain.PurposeAppAuthRefresh, user.Username)
	if err != nil {
		return domain.User{}, domain.AppToken{}, err
	}
	return user, token, nil
}

func (s *AccountService) createOAuthUser(ctx context.Context, provider domain.AuthProvider, identity OAuthIdentity, emailAddr string) (domain.User, error) {
	base := strings.TrimSpace(identity.Username)
	if base == "" {
		base = strings.SplitN(emailAddr, "@", 2)[0]
	}
	user := domain.User{
		Email:          emailAddr,
		Verified:       true,
		AuthProvider:   provider,
		AuthProviderID: strings.TrimSpace(identity.ProviderID),
		CreatedAt:      s.now().UTC(),
	}

	// El email ya no existe, así que un duplicado es el username: se prueba con sufijo.
	var err error
	for attempt := 0; attempt < oauthUsernameRetries; attempt++ {
		user.Username = oauthUsernameCandidate(base, provider, attempt)
		err = s.users.CreateUser(ctx, user)
		if err == nil || !errors.Is(err, repository.ErrDuplicateUser) {
			break
		}
	}
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.createAPIKey(ctx, user.Username); err != nil {
		s.rollbackUser(ctx, user.Username)
		return domain.User{}, err
	}
	return user, nil
}

func oauthUsernameCandidate(base string, provider domain.AuthProvider, attempt int) string {
	switch attempt {
	case 0:
		return base
	case 1:
		return base + "_" + strings.ToLower(string(provider))
	default:
		return fmt.Sprintf("%s_%s%d", base, strings.ToLower(string(provider)), attempt)
	}
}

// rollbackUser borra un usuario a medio crear para que el registro pueda reintentarse.
func (s *AccountService) rollbackUser(ctx context.Context, username string) {
	if err := s.users.DeleteUser(ctx, username); err != nil {
		s.logger.Error("rollback user failed", zap.Error(err), zap.String("username", username))
	}
}

func (s *AccountService) createAPIKey(ctx context.Context, username string) (domain.APIKey, error) {
	secret, err := randomAlphanumeric(apiSecretLength)
	if err != nil {
		return domain.APIKey{}, err
	}
	key := domain.APIKey{
		Username:  username,
		Key:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		Secret:    secret,
		CreatedAt: s.now().UTC(),
	}
	if err := s.apiKeys.CreateAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
