package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"feedgears/internal/domain"
)

// pgxQuerier es el subconjunto de pgxpool.Pool que usan los repositorios.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository define el contrato de persistencia para usuarios y sus claims.
type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	FindUserByName(ctx context.Context, username string) (domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	FindUserByAPIKey(ctx context.Context, key string) (domain.User, error)
	UpdateClaim(ctx context.Context, username string, field domain.ClaimField, value string) error
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	SetVerified(ctx context.Context, username string, verified bool) error
	DeleteUser(ctx context.Context, username string) error
}

var ErrDuplicateUser = errors.New("user already exists")

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool pgxQuerier
}

func NewPgUserRepository(pool pgxQuerier) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `username, email, password_hash, verified, auth_provider, auth_provider_id,
		COALESCE(auth_claim, ''), COALESCE(pw_reset_claim, ''), COALESCE(pw_reset_auth_claim, ''),
		COALESCE(verification_claim, ''), created_at`

func (r *PgUserRepository) CreateUser(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (username, email, password_hash, verified, auth_provider, auth_provider_id,
			auth_claim, pw_reset_claim, pw_reset_auth_claim, verification_claim, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11)
	`
	_, err := r.pool.Exec(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Verified,
		string(user.AuthProvider),
		user.AuthProviderID,
		user.AuthClaim,
		user.PwResetClaim,
		user.PwResetAuthClaim,
		user.VerificationClaim,
		user.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateUser
	}
	return err
}

func (r *PgUserRepository) FindUserByName(ctx context.Context, username string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *PgUserRepository) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) FindUserByAPIKey(ctx context.Context, key string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE username = (SELECT username FROM api_keys WHERE api_key = $1)`
	return scanUser(r.pool.QueryRow(ctx, query, key))
}

// UpdateClaim reemplaza el claim en una sola sentencia; la última escritura gana.
func (r *PgUserRepository) UpdateClaim(ctx context.Context, username string, field domain.ClaimField, value string) error {
	if !field.Valid() {
		return fmt.Errorf("unknown claim field %q", field)
	}
	query := fmt.Sprintf(`UPDATE users SET %s = NULLIF($1, '') WHERE username = $2`, field)
	tag, err := r.pool.Exec(ctx, query, value, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $1 WHERE username = $2`
	tag, err := r.pool.Exec(ctx, query, passwordHash, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PgUserRepository) SetVerified(ctx context.Context, username string, verified bool) error {
	const query = `UPDATE users SET verified = $1 WHERE username = $2`
	tag, err := r.pool.Exec(ctx, query, verified, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// DeleteUser elimina el usuario; su API key cae por ON DELETE CASCADE.
func (r *PgUserRepository) DeleteUser(ctx context.Context, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u        domain.User
		provider string
	)
	err := row.Scan(
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Verified,
		&provider,
		&u.AuthProviderID,
		&u.AuthClaim,
		&u.PwResetClaim,
		&u.PwResetAuthClaim,
		&u.VerificationClaim,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	u.AuthProvider = domain.AuthProvider(provider)
	return u, nil
}
