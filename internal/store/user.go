// Package store is the credential-store adapter: user records live in
// Postgres and are only ever mutated through this package.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is the authoritative conflict signal for signup;
	// it comes from the unique constraint, not from a pre-check.
	ErrDuplicateEmail = errors.New("email already registered")
)

// User is the full credential record. Activation and reset tokens are
// single-use: both are cleared in the same update that consumes them.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Avatar       string
	Location     string
	DOB          *time.Time
	IsActive     bool

	ActivationToken          string
	ActivationTokenExpiresAt *time.Time

	PasswordResetToken          string
	PasswordResetTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CurrentUser is the cache-resident projection of a User. It never carries
// the password hash or any activation/reset token material.
type CurrentUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Fullname  string `json:"fullname"`
	Avatar    string `json:"avatar"`
	Location  string `json:"location"`
	DOB       string `json:"dob,omitempty"`
	IsActive  bool   `json:"isActive"`
}

// Projection builds the sanitized CurrentUser view of u.
func (u *User) Projection() CurrentUser {
	dob := ""
	if u.DOB != nil {
		dob = u.DOB.Format(time.RFC3339)
	}
	return CurrentUser{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Fullname:  strings.TrimSpace(u.FirstName + " " + u.LastName),
		Avatar:    u.Avatar,
		Location:  u.Location,
		DOB:       dob,
		IsActive:  u.IsActive,
	}
}

// NewUser is the input for Users.Create.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Avatar       string
	Location     string
	DOB          *time.Time

	ActivationToken          string
	ActivationTokenExpiresAt time.Time
}

// UserPatch is a partial update; nil fields are left untouched. Setting a
// token pointer to the empty string clears the token, and a zero time
// clears the matching expiry.
type UserPatch struct {
	PasswordHash *string
	IsActive     *bool

	ActivationToken          *string
	ActivationTokenExpiresAt *time.Time

	PasswordResetToken          *string
	PasswordResetTokenExpiresAt *time.Time
}

// Users is the adapter contract the auth service depends on. Token lookups
// only match records whose token expiry is still in the future; expired and
// unknown tokens are indistinguishable to callers.
type Users interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByActivationToken(ctx context.Context, tok string) (*User, error)
	FindByResetToken(ctx context.Context, tok string) (*User, error)
	Create(ctx context.Context, in NewUser) (*User, error)
	Update(ctx context.Context, id string, patch UserPatch) (*User, error)
}
