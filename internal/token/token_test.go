package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     2 * time.Hour,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "accountd-test",
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.RefreshTTL = time.Hour
	cfg.AccessTTL = 2 * time.Hour
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.AccessSecret = nil
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestIssueAndVerifyPair(t *testing.T) {
	svc, err := New(testConfig())
	require.NoError(t, err)

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)
	assert.True(t, IsWellFormed(pair.AccessToken))
	assert.True(t, IsWellFormed(pair.RefreshToken))

	claims, err := svc.Verify(KindAccess, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	claims, err = svc.Verify(KindRefresh, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestSecretIsolation(t *testing.T) {
	svc, err := New(testConfig())
	require.NoError(t, err)

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	// A well-formed refresh token must not pass access verification, and
	// vice versa.
	_, err = svc.Verify(KindAccess, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Verify(KindRefresh, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyExpiredIsDistinct(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTTL = -2 * time.Second
	cfg.RefreshTTL = -time.Second
	svc := &Service{config: cfg}

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	_, err = svc.Verify(KindAccess, pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpired)

	// Tampering flips the result from expired to invalid.
	_, err = svc.Verify(KindAccess, pair.AccessToken+"x")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, err := New(testConfig())
	require.NoError(t, err)

	for _, tok := range []string{"", "abc", "a.b", "a.b.c", "....."} {
		_, err := svc.Verify(KindAccess, tok)
		assert.ErrorIs(t, err, ErrInvalid, "token %q", tok)
	}
}

func TestDecodeWithoutVerification(t *testing.T) {
	svc, err := New(testConfig())
	require.NoError(t, err)

	pair, err := svc.IssuePair("user-42")
	require.NoError(t, err)

	claims, err := svc.Decode(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)

	_, err = svc.Decode("not-a-token")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestIsWellFormed(t *testing.T) {
	assert.True(t, IsWellFormed("aaa.bbb.ccc"))
	assert.True(t, IsWellFormed("a-_1.b-_2.c-_3"))
	assert.False(t, IsWellFormed("aaa.bbb"))
	assert.False(t, IsWellFormed("aaa.bbb.ccc.ddd"))
	assert.False(t, IsWellFormed("aaa.b b.ccc"))
	assert.False(t, IsWellFormed(""))
}
