package repository

import (
	"context"
	"time"

	"learnhub/internal/domain"
)

const userColumns = `id, email, display_name, auth_provider, auth_subject, password_hash,
	email_verified_at, is_two_factor_enabled, role, created_at, updated_at`

// PgUserRepository implementa UserRepository sobre Postgres.
type PgUserRepository struct {
	db dbtx
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, email, display_name, auth_provider, auth_subject, password_hash,
			email_verified_at, is_two_factor_enabled, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.AuthProvider,
		user.AuthSubject,
		nullableString(user.PasswordHash),
		user.EmailVerifiedAt,
		user.IsTwoFactorEnabled,
		string(user.Role),
		user.CreatedAt,
		user.UpdatedAt,
	)
	return translatePgError(err)
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PgUserRepository) GetByAuth(ctx context.Context, provider, subject string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE auth_provider = $1 AND auth_subject = $2`, provider, subject)
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, query, passwordHash, id)
}

func (r *PgUserRepository) VerifyEmail(ctx context.Context, id string, verifiedAt time.Time) error {
	const query = `UPDATE users SET email_verified_at = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, query, verifiedAt, id)
}

func (r *PgUserRepository) LinkOAuth(ctx context.Context, id, provider, subject string) error {
	const query = `UPDATE users SET auth_provider = $1, auth_subject = $2, updated_at = NOW() WHERE id = $3`
	return r.execOne(ctx, query, provider, subject, id)
}

func (r *PgUserRepository) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE users SET is_two_factor_enabled = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, query, enabled, id)
}

func (r *PgUserRepository) getOne(ctx context.Context, query string, args ...any) (domain.User, error) {
	var (
		u            domain.User
		passwordHash *string
		role         string
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.AuthProvider,
		&u.AuthSubject,
		&passwordHash,
		&u.EmailVerifiedAt,
		&u.IsTwoFactorEnabled,
		&role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, translatePgError(err)
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	u.Role = domain.Role(role)
	return u, nil
}

func (r *PgUserRepository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
