// Package auth implements the account lifecycle: signup, activation, login,
// logout, password reset, and session refresh. The service owns credential
// and session state transitions; it renders no responses and sends no email.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rooftopdev/accountd/internal/apperr"
	"github.com/rooftopdev/accountd/internal/cache"
	"github.com/rooftopdev/accountd/internal/mailqueue"
	"github.com/rooftopdev/accountd/internal/password"
	"github.com/rooftopdev/accountd/internal/store"
	"github.com/rooftopdev/accountd/internal/token"
)

// Client-safe messages. Login collapses unknown email and wrong password
// into one message, and the token-consuming flows never say whether a token
// was wrong or merely expired.
const (
	msgBadCredentials  = "invalid email or password"
	msgInactiveAccount = "please verify your email to activate your account"
	msgBadActivation   = "invalid or expired activation token"
	msgBadReset        = "invalid or expired password reset token"
	msgDuplicateEmail  = "an account with this email already exists"
	msgSessionRevoked  = "session is no longer valid, please log in again"
)

// Config carries the service tunables that are not owned by a collaborator.
type Config struct {
	// FrontendURL is the base for activation and reset links.
	FrontendURL string
	// AccountTokenTTL bounds activation and password-reset tokens.
	AccountTokenTTL time.Duration
}

// Service wires the credential store, session cache, and token signer into
// the account operations. Operations that owe the user an email return the
// job as a value; the caller enqueues it.
type Service struct {
	users    store.Users
	sessions *cache.Sessions
	tokens   *token.Service
	hasher   *password.Hasher
	log      zerolog.Logger
	cfg      Config
}

// New assembles the service from its collaborators.
func New(users store.Users, sessions *cache.Sessions, tokens *token.Service,
	hasher *password.Hasher, log zerolog.Logger, cfg Config) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		log:      log,
		cfg:      cfg,
	}
}

// SignupInput is the already-validated signup payload.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Avatar    string
	Location  string
	DOB       *time.Time
}

// Signup creates an inactive account and returns the activation email job.
// The duplicate check is the store's unique constraint, so two concurrent
// signups for one email cannot both succeed.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*store.User, mailqueue.Job, error) {
	// Cheap pre-check for the common case; the unique constraint below stays
	// authoritative since pre-check-then-write is not atomic.
	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, mailqueue.Job{}, apperr.New(apperr.KindConflict, msgDuplicateEmail)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, mailqueue.Job{}, apperr.Wrap(apperr.KindInternal, "could not create account", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, mailqueue.Job{}, apperr.Wrap(apperr.KindInternal, "could not create account", err)
	}

	activationToken, err := newAccountToken()
	if err != nil {
		return nil, mailqueue.Job{}, apperr.Wrap(apperr.KindInternal, "could not create account", err)
	}

	user, err := s.users.Create(ctx, store.NewUser{
		Email:                    in.Email,
		PasswordHash:             hash,
		FirstName:                in.FirstName,
		LastName:                 in.LastName,
		Avatar:                   in.Avatar,
		Location:                 in.Location,
		DOB:                      in.DOB,
		ActivationToken:          activationToken,
		ActivationTokenExpiresAt: time.Now().Add(s.cfg.AccountTokenTTL),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, mailqueue.Job{}, apperr.New(apperr.KindConflict, msgDuplicateEmail)
		}
		return nil, mailqueue.Job{}, apperr.Wrap(apperr.KindInternal, "could not create account", err)
	}

	s.log.Info().Str("userId", user.ID).Msg("account created")

	job := mailqueue.NewJob(mailqueue.KindUserRegistration, user.Email, user.FirstName,
		fmt.Sprintf("%s/activate?token=%s", s.cfg.FrontendURL, activationToken))
	return user, job, nil
}

// ActivateAccount consumes an activation token. Unknown and expired tokens
// are indistinguishable to the caller, and the token is cleared in the same
// update that flips the account active.
func (s *Service) ActivateAccount(ctx context.Context, activationToken string) (*store.User, error) {
	user, err := s.users.FindByActivationToken(ctx, activationToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindAuthentication, msgBadActivation)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not activate account", err)
	}

	active := true
	clearToken := ""
	user, err = s.users.Update(ctx, user.ID, store.UserPatch{
		IsActive:                 &active,
		ActivationToken:          &clearToken,
		ActivationTokenExpiresAt: &time.Time{},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not activate account", err)
	}

	s.log.Info().Str("userId", user.ID).Msg("account activated")
	return user, nil
}

// Login verifies credentials and opens a session. Unknown email and wrong
// password share one message so the response does not reveal which failed.
func (s *Service) Login(ctx context.Context, email, plaintext string) (*store.User, token.Pair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, token.Pair{}, apperr.New(apperr.KindAuthentication, msgBadCredentials)
		}
		return nil, token.Pair{}, apperr.Wrap(apperr.KindInternal, "could not log in", err)
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		return nil, token.Pair{}, apperr.New(apperr.KindAuthentication, msgBadCredentials)
	}
	if !user.IsActive {
		return nil, token.Pair{}, apperr.New(apperr.KindAuthentication, msgInactiveAccount)
	}

	pair, err := s.openSession(ctx, user)
	if err != nil {
		return nil, token.Pair{}, err
	}

	s.log.Info().Str("userId", user.ID).Msg("login succeeded")
	return user, pair, nil
}

// Logout drops the cached session. The signed tokens stay valid until they
// expire, but without a cached pair the refresh flow refuses them, so the
// session cannot be extended.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Invalidate(ctx, userID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not log out", err)
	}
	s.log.Info().Str("userId", userID).Msg("logout")
	return nil
}

// ForgotPassword issues a reset token for the account behind email. Unknown
// addresses succeed silently with no job, so the endpoint cannot be used to
// probe which emails are registered.
func (s *Service) ForgotPassword(ctx context.Context, email string) (mailqueue.Job, bool, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mailqueue.Job{}, false, nil
		}
		return mailqueue.Job{}, false, apperr.Wrap(apperr.KindInternal, "could not process request", err)
	}

	resetToken, err := newAccountToken()
	if err != nil {
		return mailqueue.Job{}, false, apperr.Wrap(apperr.KindInternal, "could not process request", err)
	}

	expiry := time.Now().Add(s.cfg.AccountTokenTTL)
	if _, err := s.users.Update(ctx, user.ID, store.UserPatch{
		PasswordResetToken:          &resetToken,
		PasswordResetTokenExpiresAt: &expiry,
	}); err != nil {
		return mailqueue.Job{}, false, apperr.Wrap(apperr.KindInternal, "could not process request", err)
	}

	s.log.Info().Str("userId", user.ID).Msg("password reset requested")

	job := mailqueue.NewJob(mailqueue.KindForgotPassword, user.Email, user.FirstName,
		fmt.Sprintf("%s/reset-password?token=%s", s.cfg.FrontendURL, resetToken))
	return job, true, nil
}

// ResetPassword consumes a reset token, replaces the password, and revokes
// every open session for the account. Returns the confirmation email job.
func (s *Service) ResetPassword(ctx context.Context, resetToken, plaintext string) (mailqueue.Job, error) {
	user, err := s.users.FindByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mailqueue.Job{}, apperr.New(apperr.KindAuthentication, msgBadReset)
		}
		return mailqueue.Job{}, apperr.Wrap(apperr.KindInternal, "could not reset password", err)
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return mailqueue.Job{}, apperr.Wrap(apperr.KindInternal, "could not reset password", err)
	}

	clearToken := ""
	if _, err := s.users.Update(ctx, user.ID, store.UserPatch{
		PasswordHash:                &hash,
		PasswordResetToken:          &clearToken,
		PasswordResetTokenExpiresAt: &time.Time{},
	}); err != nil {
		return mailqueue.Job{}, apperr.Wrap(apperr.KindInternal, "could not reset password", err)
	}

	// A stolen session must not survive a password change.
	if err := s.sessions.Invalidate(ctx, user.ID); err != nil {
		s.log.Error().Err(err).Str("userId", user.ID).Msg("session invalidation after reset failed")
	}

	s.log.Info().Str("userId", user.ID).Msg("password reset")

	job := mailqueue.NewJob(mailqueue.KindResetPasswordSuccess, user.Email, user.FirstName, "")
	return job, nil
}

// ReissueSession mints and caches a fresh pair for an already-vetted user.
// The refresh rotation gate (byte-equality against the cached pair, reuse
// revocation, cryptographic verification) runs in the middleware before
// this is reachable.
func (s *Service) ReissueSession(ctx context.Context, userID string) (*store.User, token.Pair, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, token.Pair{}, apperr.New(apperr.KindAuthentication, msgSessionRevoked)
		}
		return nil, token.Pair{}, apperr.Wrap(apperr.KindInternal, "could not refresh session", err)
	}

	pair, err := s.openSession(ctx, user)
	if err != nil {
		return nil, token.Pair{}, err
	}

	s.log.Info().Str("userId", user.ID).Msg("session refreshed")
	return user, pair, nil
}

// CurrentUser resolves the cached projection for userID, falling back to
// the store when the cache has been evicted.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*store.CurrentUser, error) {
	if cached, ok := s.sessions.CurrentUser(ctx, userID); ok {
		return cached, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "account not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not load account", err)
	}
	projection := user.Projection()
	return &projection, nil
}

// openSession issues a fresh pair and caches it together with the user
// projection. A cache write failure still opens the session; the user pays
// with a forced re-login once the refresh flow finds no cached pair.
func (s *Service) openSession(ctx context.Context, user *store.User) (token.Pair, error) {
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return token.Pair{}, apperr.Wrap(apperr.KindInternal, "could not open session", err)
	}
	if err := s.sessions.Save(ctx, user.ID, pair, user.Projection()); err != nil {
		s.log.Error().Err(err).Str("userId", user.ID).Msg("session cache write failed")
	}
	return pair, nil
}

// newAccountToken returns the opaque single-use token used for activation
// and password-reset links.
func newAccountToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}
