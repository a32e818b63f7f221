package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Users implementation with the same lookup and
// conflict semantics as the Postgres adapter. It backs the test suites and
// is not intended for production use.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[string]*User)}
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (m *Memory) FindByActivationToken(_ context.Context, tok string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tok = strings.TrimSpace(tok)
	for _, u := range m.users {
		if tok != "" && u.ActivationToken == tok &&
			u.ActivationTokenExpiresAt != nil && !u.ActivationTokenExpiresAt.Before(time.Now()) {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindByResetToken(_ context.Context, tok string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tok = strings.TrimSpace(tok)
	for _, u := range m.users {
		if tok != "" && u.PasswordResetToken == tok &&
			u.PasswordResetTokenExpiresAt != nil && !u.PasswordResetTokenExpiresAt.Before(time.Now()) {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Create(_ context.Context, in NewUser) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	for _, u := range m.users {
		if u.Email == email {
			return nil, ErrDuplicateEmail
		}
	}

	now := time.Now()
	u := &User{
		ID:              uuid.NewString(),
		Email:           email,
		PasswordHash:    in.PasswordHash,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Avatar:          in.Avatar,
		Location:        in.Location,
		DOB:             in.DOB,
		ActivationToken: in.ActivationToken,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !in.ActivationTokenExpiresAt.IsZero() {
		exp := in.ActivationTokenExpiresAt
		u.ActivationTokenExpiresAt = &exp
	}

	m.users[u.ID] = u
	return clone(u), nil
}

func (m *Memory) Update(_ context.Context, id string, patch UserPatch) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if patch.ActivationToken != nil {
		u.ActivationToken = *patch.ActivationToken
	}
	if patch.ActivationTokenExpiresAt != nil {
		u.ActivationTokenExpiresAt = timeOrNil(*patch.ActivationTokenExpiresAt)
	}
	if patch.PasswordResetToken != nil {
		u.PasswordResetToken = *patch.PasswordResetToken
	}
	if patch.PasswordResetTokenExpiresAt != nil {
		u.PasswordResetTokenExpiresAt = timeOrNil(*patch.PasswordResetTokenExpiresAt)
	}
	u.UpdatedAt = time.Now()

	return clone(u), nil
}

func clone(u *User) *User {
	out := *u
	return &out
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
