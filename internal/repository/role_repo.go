package repository

import (
	"context"
)

// RoleRepository resuelve las features concedidas a un usuario a través de sus roles.
type RoleRepository interface {
	FeaturesForUser(ctx context.Context, username string) ([]string, error)
}

type PgRoleRepository struct {
	pool pgxQuerier
}

func NewPgRoleRepository(pool pgxQuerier) *PgRoleRepository {
	return &PgRoleRepository{pool: pool}
}

func (r *PgRoleRepository) FeaturesForUser(ctx context.Context, username string) ([]string, error) {
	const query = `
		SELECT DISTINCT rf.feature_cd
		FROM users_roles ur
		JOIN roles_features rf ON rf.role = ur.role
		WHERE ur.username = $1
		ORDER BY rf.feature_cd
	`
	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var features []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}
