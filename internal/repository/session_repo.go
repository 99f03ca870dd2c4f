package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSessionRepository persiste los jti de refresh tokens en la tabla sessions.
// Cumple service.RefreshTokenStore cuando no hay Redis.
type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

func (r *PgSessionRepository) Store(ctx context.Context, jti, userID string, ttl time.Duration) error {
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	const query = `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, query, jti, userID, now.Add(ttl), now)
	return translatePgError(err)
}

func (r *PgSessionRepository) Exists(ctx context.Context, jti string) (bool, error) {
	if strings.TrimSpace(jti) == "" {
		return false, nil
	}
	const query = `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1 AND expires_at > NOW())`
	var ok bool
	if err := r.pool.QueryRow(ctx, query, jti).Scan(&ok); err != nil {
		return false, translatePgError(err)
	}
	return ok, nil
}

func (r *PgSessionRepository) Revoke(ctx context.Context, jti string) error {
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, jti)
	return translatePgError(err)
}

func (r *PgSessionRepository) RevokeUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return translatePgError(err)
}
