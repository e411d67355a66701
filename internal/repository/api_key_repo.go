package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"feedgears/internal/domain"
)

var ErrAPIKeyNotFound = errors.New("api key not found")

// APIKeyRepository persiste las credenciales de API, una por usuario.
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key domain.APIKey) error
	FindAPIKeyByUsername(ctx context.Context, username string) (domain.APIKey, error)
}

type PgAPIKeyRepository struct {
	pool pgxQuerier
}

func NewPgAPIKeyRepository(pool pgxQuerier) *PgAPIKeyRepository {
	return &PgAPIKeyRepository{pool: pool}
}

func (r *PgAPIKeyRepository) CreateAPIKey(ctx context.Context, key domain.APIKey) error {
	const query = `
		INSERT INTO api_keys (username, api_key, api_secret, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, key.Username, key.Key, key.Secret, key.CreatedAt)
	return err
}

func (r *PgAPIKeyRepository) FindAPIKeyByUsername(ctx context.Context, username string) (domain.APIKey, error) {
	const query = `
		SELECT username, api_key, api_secret, created_at
		FROM api_keys
		WHERE username = $1
	`
	var k domain.APIKey
	err := r.pool.QueryRow(ctx, query, username).Scan(&k.Username, &k.Key, &k.Secret, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.APIKey{}, ErrAPIKeyNotFound
	}
	return k, err
}
