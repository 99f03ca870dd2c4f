package repository

import (
	"context"
	"fmt"
	"time"

	"learnhub/internal/domain"
)

// PgTokenRepository implementa TokenRepository. Cada kind tiene su tabla
// con indice unico sobre email.
type PgTokenRepository struct {
	db dbtx
}

func (r *PgTokenRepository) Upsert(ctx context.Context, token domain.Token) error {
	table, err := tokenTable(token.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, email, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE
		SET id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`, table)
	_, err = r.db.Exec(ctx, query,
		token.ID,
		token.Email,
		token.Hash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return translatePgError(err)
}

func (r *PgTokenRepository) GetByHash(ctx context.Context, kind domain.TokenKind, hash string) (domain.Token, error) {
	return r.getOne(ctx, kind, "token_hash", hash)
}

func (r *PgTokenRepository) GetByEmail(ctx context.Context, kind domain.TokenKind, email string) (domain.Token, error) {
	return r.getOne(ctx, kind, "email", email)
}

func (r *PgTokenRepository) Delete(ctx context.Context, kind domain.TokenKind, id string) error {
	table, err := tokenTable(kind)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgTokenRepository) DeleteExpired(ctx context.Context, kind domain.TokenKind, before time.Time) (int64, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at < $1`, table), before)
	if err != nil {
		return 0, translatePgError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgTokenRepository) getOne(ctx context.Context, kind domain.TokenKind, column, value string) (domain.Token, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return domain.Token{}, err
	}
	query := fmt.Sprintf(`
		SELECT id, email, token_hash, expires_at, created_at
		FROM %s
		WHERE %s = $1
	`, table, column)
	t := domain.Token{Kind: kind}
	err = r.db.QueryRow(ctx, query, value).Scan(
		&t.ID,
		&t.Email,
		&t.Hash,
		&t.ExpiresAt,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.Token{}, translatePgError(err)
	}
	return t, nil
}
