package repository

import (
	"context"
	"maps"
	"sync"
	"time"

	"learnhub/internal/domain"
)

// MemoryStore implementa Store en memoria para tests y DB_DRIVER=memory.
// WithinTx restaura una copia si fn falla; no aisla escrituras concurrentes.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]domain.User
	tokens        map[domain.TokenKind]map[string]domain.Token // kind -> email -> token
	confirmations map[string]domain.TwoFactorConfirmation      // userID -> marker
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		users:         make(map[string]domain.User),
		tokens:        make(map[domain.TokenKind]map[string]domain.Token),
		confirmations: make(map[string]domain.TwoFactorConfirmation),
	}
	for kind := range tokenTables {
		s.tokens[kind] = make(map[string]domain.Token)
	}
	return s
}

func (s *MemoryStore) Users() UserRepository {
	return memoryUsers{s}
}

func (s *MemoryStore) Tokens() TokenRepository {
	return memoryTokens{s}
}

func (s *MemoryStore) TwoFactorConfirmations() TwoFactorConfirmationRepository {
	return memoryConfirmations{s}
}

func (s *MemoryStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	users := maps.Clone(s.users)
	tokens := make(map[domain.TokenKind]map[string]domain.Token, len(s.tokens))
	for kind, byEmail := range s.tokens {
		tokens[kind] = maps.Clone(byEmail)
	}
	confirmations := maps.Clone(s.confirmations)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.users = users
		s.tokens = tokens
		s.confirmations = confirmations
		s.mu.Unlock()
		return err
	}
	return nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[user.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.s.users {
		if existing.Email == user.Email {
			return ErrDuplicate
		}
	}
	m.s.users[user.ID] = user
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id string) (domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	user, ok := m.s.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	return m.find(func(u domain.User) bool { return u.Email == email })
}

func (m memoryUsers) GetByAuth(_ context.Context, provider, subject string) (domain.User, error) {
	return m.find(func(u domain.User) bool {
		return u.AuthProvider == provider && u.AuthSubject == subject
	})
}

func (m memoryUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return m.update(id, func(u *domain.User) { u.PasswordHash = passwordHash })
}

func (m memoryUsers) VerifyEmail(_ context.Context, id string, verifiedAt time.Time) error {
	return m.update(id, func(u *domain.User) { u.EmailVerifiedAt = &verifiedAt })
}

func (m memoryUsers) LinkOAuth(_ context.Context, id, provider, subject string) error {
	return m.update(id, func(u *domain.User) {
		u.AuthProvider = provider
		u.AuthSubject = subject
	})
}

func (m memoryUsers) SetTwoFactor(_ context.Context, id string, enabled bool) error {
	return m.update(id, func(u *domain.User) { u.IsTwoFactorEnabled = enabled })
}

func (m memoryUsers) find(match func(domain.User) bool) (domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if match(u) {
			return u, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (m memoryUsers) update(id string, apply func(*domain.User)) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	user, ok := m.s.users[id]
	if !ok {
		return ErrNotFound
	}
	apply(&user)
	user.UpdatedAt = time.Now().UTC()
	m.s.users[id] = user
	return nil
}

type memoryTokens struct{ s *MemoryStore }

func (m memoryTokens) Upsert(_ context.Context, token domain.Token) error {
	if _, err := tokenTable(token.Kind); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.tokens[token.Kind][token.Email] = token
	return nil
}

func (m memoryTokens) GetByHash(_ context.Context, kind domain.TokenKind, hash string) (domain.Token, error) {
	if _, err := tokenTable(kind); err != nil {
		return domain.Token{}, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range m.s.tokens[kind] {
		if t.Hash == hash {
			return t, nil
		}
	}
	return domain.Token{}, ErrNotFound
}

func (m memoryTokens) GetByEmail(_ context.Context, kind domain.TokenKind, email string) (domain.Token, error) {
	if _, err := tokenTable(kind); err != nil {
		return domain.Token{}, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tokens[kind][email]
	if !ok {
		return domain.Token{}, ErrNotFound
	}
	return t, nil
}

func (m memoryTokens) Delete(_ context.Context, kind domain.TokenKind, id string) error {
	if _, err := tokenTable(kind); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for email, t := range m.s.tokens[kind] {
		if t.ID == id {
			delete(m.s.tokens[kind], email)
			return nil
		}
	}
	return ErrNotFound
}

func (m memoryTokens) DeleteExpired(_ context.Context, kind domain.TokenKind, before time.Time) (int64, error) {
	if _, err := tokenTable(kind); err != nil {
		return 0, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for email, t := range m.s.tokens[kind] {
		if t.ExpiresAt.Before(before) {
			delete(m.s.tokens[kind], email)
			n++
		}
	}
	return n, nil
}

type memoryConfirmations struct{ s *MemoryStore }

func (m memoryConfirmations) Replace(_ context.Context, c domain.TwoFactorConfirmation) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.confirmations[c.UserID] = c
	return nil
}

func (m memoryConfirmations) GetByUserID(_ context.Context, userID string) (domain.TwoFactorConfirmation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.confirmations[userID]
	if !ok {
		return domain.TwoFactorConfirmation{}, ErrNotFound
	}
	return c, nil
}

func (m memoryConfirmations) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for userID, c := range m.s.confirmations {
		if c.ID == id {
			delete(m.s.confirmations, userID)
			return nil
		}
	}
	return ErrNotFound
}
