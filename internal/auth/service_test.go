package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rooftopdev/accountd/internal/apperr"
	"github.com/rooftopdev/accountd/internal/cache"
	"github.com/rooftopdev/accountd/internal/mailqueue"
	"github.com/rooftopdev/accountd/internal/password"
	"github.com/rooftopdev/accountd/internal/store"
	"github.com/rooftopdev/accountd/internal/token"
)

type fixture struct {
	svc      *Service
	users    *store.Memory
	sessions *cache.Sessions
	tokens   *token.Service
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := token.New(token.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     2 * time.Hour,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)

	users := store.NewMemory()
	sessions := cache.NewSessions(rdb, zerolog.Nop(), tokens.RefreshTTL())

	svc := New(users, sessions, tokens, password.New(4), zerolog.Nop(), Config{
		FrontendURL:     "http://localhost:3000",
		AccountTokenTTL: time.Hour,
	})
	return &fixture{svc: svc, users: users, sessions: sessions, tokens: tokens, redis: mr}
}

func signupInput() SignupInput {
	return SignupInput{
		Email:     "jane@example.com",
		Password:  "s3cretpass",
		FirstName: "Jane",
		LastName:  "Doe",
	}
}

// signupAndActivate runs the full registration path and returns the active user.
func (f *fixture) signupAndActivate(t *testing.T) *store.User {
	t.Helper()
	ctx := context.Background()

	user, _, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)

	activated, err := f.svc.ActivateAccount(ctx, stored.ActivationToken)
	require.NoError(t, err)
	return activated
}

func TestSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, job, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	assert.False(t, user.IsActive, "new accounts start inactive")
	assert.NotEqual(t, "s3cretpass", user.PasswordHash)

	assert.Equal(t, mailqueue.KindUserRegistration, job.Kind)
	assert.Equal(t, "jane@example.com", job.To)
	assert.Contains(t, job.Link, "/activate?token=")

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ActivationToken)
	assert.Contains(t, job.Link, stored.ActivationToken)
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	_, _, err = f.svc.Signup(ctx, signupInput())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestActivateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, _, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)

	activated, err := f.svc.ActivateAccount(ctx, stored.ActivationToken)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)
	assert.Empty(t, activated.ActivationToken, "activation token is single-use")

	// The consumed token cannot be replayed.
	_, err = f.svc.ActivateAccount(ctx, stored.ActivationToken)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestActivateAccountUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ActivateAccount(context.Background(), "deadbeef")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	activated := f.signupAndActivate(t)

	user, pair, err := f.svc.Login(ctx, "jane@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, activated.ID, user.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	cached, ok := f.sessions.Tokens(ctx, user.ID)
	require.True(t, ok)
	assert.Equal(t, pair, cached)

	projection, ok := f.sessions.CurrentUser(ctx, user.ID)
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", projection.Fullname)
}

func TestLoginGenericFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signupAndActivate(t)

	_, _, errUnknown := f.svc.Login(ctx, "nobody@example.com", "s3cretpass")
	_, _, errWrongPass := f.svc.Login(ctx, "jane@example.com", "wrong")

	require.Error(t, errUnknown)
	require.Error(t, errWrongPass)
	assert.Equal(t, apperr.MessageOf(errUnknown), apperr.MessageOf(errWrongPass),
		"unknown email and wrong password must be indistinguishable")
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(errUnknown))
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	_, _, err = f.svc.Login(ctx, "jane@example.com", "s3cretpass")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
	assert.Contains(t, apperr.MessageOf(err), "verify your email")
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signupAndActivate(t)

	user, _, err := f.svc.Login(ctx, "jane@example.com", "s3cretpass")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, user.ID))
	_, ok := f.sessions.Tokens(ctx, user.ID)
	assert.False(t, ok)

	// Logging out twice is harmless.
	require.NoError(t, f.svc.Logout(ctx, user.ID))
}

func TestForgotPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signupAndActivate(t)

	job, queued, err := f.svc.ForgotPassword(ctx, "jane@example.com")
	require.NoError(t, err)
	require.True(t, queued)
	assert.Equal(t, mailqueue.KindForgotPassword, job.Kind)
	assert.Contains(t, job.Link, "/reset-password?token=")

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PasswordResetToken)
	assert.Contains(t, job.Link, stored.PasswordResetToken)
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)

	_, queued, err := f.svc.ForgotPassword(context.Background(), "nobody@example.com")
	require.NoError(t, err, "unknown emails must not be probeable")
	assert.False(t, queued)
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signupAndActivate(t)

	loggedIn, _, err := f.svc.Login(ctx, "jane@example.com", "s3cretpass")
	require.NoError(t, err)

	_, queued, err := f.svc.ForgotPassword(ctx, "jane@example.com")
	require.NoError(t, err)
	require.True(t, queued)

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)

	job, err := f.svc.ResetPassword(ctx, stored.PasswordResetToken, "n3wpassword")
	require.NoError(t, err)
	assert.Equal(t, mailqueue.KindResetPasswordSuccess, job.Kind)

	// Open sessions do not survive a password change.
	_, ok := f.sessions.Tokens(ctx, loggedIn.ID)
	assert.False(t, ok)

	// Old password is gone, new one works.
	_, _, err = f.svc.Login(ctx, "jane@example.com", "s3cretpass")
	require.Error(t, err)
	_, _, err = f.svc.Login(ctx, "jane@example.com", "n3wpassword")
	require.NoError(t, err)

	// The reset token is single-use.
	_, err = f.svc.ResetPassword(ctx, stored.PasswordResetToken, "anotherpass")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestResetPasswordUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ResetPassword(context.Background(), "deadbeef", "n3wpassword")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestReissueSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signupAndActivate(t)

	user, pair, err := f.svc.Login(ctx, "jane@example.com", "s3cretpass")
	require.NoError(t, err)

	// Token payloads carry second-resolution timestamps; without this the
	// reissued pair can be byte-identical to the original.
	time.Sleep(1100 * time.Millisecond)

	refreshed, next, err := f.svc.ReissueSession(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, refreshed.ID)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	cached, ok := f.sessions.Tokens(ctx, user.ID)
	require.True(t, ok)
	assert.Equal(t, next, cached, "the cache holds only the newest pair")
}

func TestReissueSessionUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.ReissueSession(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestCurrentUserFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signupAndActivate(t)

	user, _, err := f.svc.Login(ctx, "jane@example.com", "s3cretpass")
	require.NoError(t, err)

	// Simulate cache eviction without ending the session.
	f.redis.FlushAll()

	projection, err := f.svc.CurrentUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, projection.ID)
	assert.Equal(t, "Jane Doe", projection.Fullname)
	assert.Empty(t, projection.DOB)
}
