package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// dbtx lo cumplen tanto *pgxpool.Pool como pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore implementa Store usando pgxpool.
type PgStore struct {
	pool *pgxpool.Pool
	db   dbtx
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

func (s *PgStore) Users() UserRepository {
	return &PgUserRepository{db: s.db}
}

func (s *PgStore) Tokens() TokenRepository {
	return &PgTokenRepository{db: s.db}
}

func (s *PgStore) TwoFactorConfirmations() TwoFactorConfirmationRepository {
	return &PgTwoFactorConfirmationRepository{db: s.db}
}

func (s *PgStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	// Ya dentro de una transaccion: se reutiliza.
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PgStore{db: tx})
	})
}

func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}
