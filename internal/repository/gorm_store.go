package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"learnhub/internal/domain"
)

type userRecord struct {
	ID                 string  `gorm:"primaryKey"`
	Email              string  `gorm:"uniqueIndex;not null"`
	DisplayName        string  `gorm:"not null;default:''"`
	AuthProvider       string  `gorm:"index:idx_users_auth;not null;default:''"`
	AuthSubject        string  `gorm:"index:idx_users_auth;not null;default:''"`
	PasswordHash       *string
	EmailVerifiedAt    *time.Time
	IsTwoFactorEnabled bool   `gorm:"not null;default:false"`
	Role               string `gorm:"not null;default:USER"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (userRecord) TableName() string { return "users" }

// TokenRow son las columnas comunes de las tres tablas de tokens.
type TokenRow struct {
	ID        string    `gorm:"primaryKey"`
	Email     string    `gorm:"uniqueIndex;not null"`
	TokenHash string    `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

// Un tipo por tabla para que AutoMigrate genere nombres de indice distintos.
type verificationTokenRecord struct{ TokenRow }

func (verificationTokenRecord) TableName() string { return tokenTables[domain.TokenVerification] }

type passwordResetTokenRecord struct{ TokenRow }

func (passwordResetTokenRecord) TableName() string { return tokenTables[domain.TokenPasswordReset] }

type twoFactorTokenRecord struct{ TokenRow }

func (twoFactorTokenRecord) TableName() string { return tokenTables[domain.TokenTwoFactor] }

type twoFactorConfirmationRecord struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

func (twoFactorConfirmationRecord) TableName() string { return "two_factor_confirmations" }

// MigrateGorm crea las tablas del core de auth para el store GORM.
func MigrateGorm(db *gorm.DB) error {
	return db.AutoMigrate(
		&userRecord{},
		&verificationTokenRecord{},
		&passwordResetTokenRecord{},
		&twoFactorTokenRecord{},
		&twoFactorConfirmationRecord{},
	)
}

// GormStore implementa Store con GORM; se usa con SQLite en local.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository {
	return &GormUserRepository{db: s.db}
}

func (s *GormStore) Tokens() TokenRepository {
	return &GormTokenRepository{db: s.db}
}

func (s *GormStore) TwoFactorConfirmations() TwoFactorConfirmationRepository {
	return &GormTwoFactorConfirmationRepository{db: s.db}
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

func translateGormError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return ErrDuplicate
	}
	return err
}

func affectedOne(res *gorm.DB) error {
	if res.Error != nil {
		return translateGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type GormUserRepository struct {
	db *gorm.DB
}

func (r *GormUserRepository) Create(ctx context.Context, user domain.User) error {
	rec := userRecord{
		ID:                 user.ID,
		Email:              user.Email,
		DisplayName:        user.DisplayName,
		AuthProvider:       user.AuthProvider,
		AuthSubject:        user.AuthSubject,
		PasswordHash:       nullableString(user.PasswordHash),
		EmailVerifiedAt:    user.EmailVerifiedAt,
		IsTwoFactorEnabled: user.IsTwoFactorEnabled,
		Role:               string(user.Role),
		CreatedAt:          user.CreatedAt,
		UpdatedAt:          user.UpdatedAt,
	}
	return translateGormError(r.db.WithContext(ctx).Create(&rec).Error)
}

func (r *GormUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *GormUserRepository) GetByAuth(ctx context.Context, provider, subject string) (domain.User, error) {
	return r.first(ctx, "auth_provider = ? AND auth_subject = ?", provider, subject)
}

func (r *GormUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.update(ctx, id, map[string]any{"password_hash": passwordHash})
}

func (r *GormUserRepository) VerifyEmail(ctx context.Context, id string, verifiedAt time.Time) error {
	return r.update(ctx, id, map[string]any{"email_verified_at": verifiedAt})
}

func (r *GormUserRepository) LinkOAuth(ctx context.Context, id, provider, subject string) error {
	return r.update(ctx, id, map[string]any{"auth_provider": provider, "auth_subject": subject})
}

func (r *GormUserRepository) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	return r.update(ctx, id, map[string]any{"is_two_factor_enabled": enabled})
}

func (r *GormUserRepository) update(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	return affectedOne(r.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", id).Updates(fields))
}

func (r *GormUserRepository) first(ctx context.Context, cond string, args ...any) (domain.User, error) {
	var rec userRecord
	if err := r.db.WithContext(ctx).Where(cond, args...).Take(&rec).Error; err != nil {
		return domain.User{}, translateGormError(err)
	}
	u := domain.User{
		ID:                 rec.ID,
		Email:              rec.Email,
		DisplayName:        rec.DisplayName,
		AuthProvider:       rec.AuthProvider,
		AuthSubject:        rec.AuthSubject,
		EmailVerifiedAt:    rec.EmailVerifiedAt,
		IsTwoFactorEnabled: rec.IsTwoFactorEnabled,
		Role:               domain.Role(rec.Role),
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
	if rec.PasswordHash != nil {
		u.PasswordHash = *rec.PasswordHash
	}
	return u, nil
}

type GormTokenRepository struct {
	db *gorm.DB
}

func (r *GormTokenRepository) Upsert(ctx context.Context, token domain.Token) error {
	table, err := tokenTable(token.Kind)
	if err != nil {
		return err
	}
	cols := TokenRow{
		ID:        token.ID,
		Email:     token.Email,
		TokenHash: token.Hash,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	}
	res := r.db.WithContext(ctx).Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "token_hash", "expires_at", "created_at"}),
	}).Create(&cols)
	return translateGormError(res.Error)
}

func (r *GormTokenRepository) GetByHash(ctx context.Context, kind domain.TokenKind, hash string) (domain.Token, error) {
	return r.first(ctx, kind, "token_hash = ?", hash)
}

func (r *GormTokenRepository) GetByEmail(ctx context.Context, kind domain.TokenKind, email string) (domain.Token, error) {
	return r.first(ctx, kind, "email = ?", email)
}

func (r *GormTokenRepository) Delete(ctx context.Context, kind domain.TokenKind, id string) error {
	table, err := tokenTable(kind)
	if err != nil {
		return err
	}
	return affectedOne(r.db.WithContext(ctx).Table(table).Where("id = ?", id).Delete(&TokenRow{}))
}

func (r *GormTokenRepository) DeleteExpired(ctx context.Context, kind domain.TokenKind, before time.Time) (int64, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).Table(table).Where("expires_at < ?", before).Delete(&TokenRow{})
	if res.Error != nil {
		return 0, translateGormError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GormTokenRepository) first(ctx context.Context, kind domain.TokenKind, cond string, args ...any) (domain.Token, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return domain.Token{}, err
	}
	var cols TokenRow
	if err := r.db.WithContext(ctx).Table(table).Where(cond, args...).Take(&cols).Error; err != nil {
		return domain.Token{}, translateGormError(err)
	}
	return domain.Token{
		ID:        cols.ID,
		Kind:      kind,
		Email:     cols.Email,
		Hash:      cols.TokenHash,
		ExpiresAt: cols.ExpiresAt,
		CreatedAt: cols.CreatedAt,
	}, nil
}

type GormTwoFactorConfirmationRepository struct {
	db *gorm.DB
}

func (r *GormTwoFactorConfirmationRepository) Replace(ctx context.Context, c domain.TwoFactorConfirmation) error {
	rec := twoFactorConfirmationRecord{ID: c.ID, UserID: c.UserID, CreatedAt: c.CreatedAt}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "created_at"}),
	}).Create(&rec)
	return translateGormError(res.Error)
}

func (r *GormTwoFactorConfirmationRepository) GetByUserID(ctx context.Context, userID string) (domain.TwoFactorConfirmation, error) {
	var rec twoFactorConfirmationRecord
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		return domain.TwoFactorConfirmation{}, translateGormError(err)
	}
	return domain.TwoFactorConfirmation{ID: rec.ID, UserID: rec.UserID, CreatedAt: rec.CreatedAt}, nil
}

func (r *GormTwoFactorConfirmationRepository) Delete(ctx context.Context, id string) error {
	return affectedOne(r.db.WithContext(ctx).Where("id = ?", id).Delete(&twoFactorConfirmationRecord{}))
}
