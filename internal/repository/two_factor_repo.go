package repository

import (
	"context"

	"learnhub/internal/domain"
)

type PgTwoFactorConfirmationRepository struct {
	db dbtx
}

// Replace deja un unico marcador por usuario.
func (r *PgTwoFactorConfirmationRepository) Replace(ctx context.Context, c domain.TwoFactorConfirmation) error {
	const query = `
		INSERT INTO two_factor_confirmations (id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id, created_at = EXCLUDED.created_at
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.UserID, c.CreatedAt)
	return translatePgError(err)
}

func (r *PgTwoFactorConfirmationRepository) GetByUserID(ctx context.Context, userID string) (domain.TwoFactorConfirmation, error) {
	const query = `
		SELECT id, user_id, created_at
		FROM two_factor_confirmations
		WHERE user_id = $1
	`
	var c domain.TwoFactorConfirmation
	err := r.db.QueryRow(ctx, query, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt)
	if err != nil {
		return domain.TwoFactorConfirmation{}, translatePgError(err)
	}
	return c, nil
}

func (r *PgTwoFactorConfirmationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM two_factor_confirmations WHERE id = $1`, id)
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
