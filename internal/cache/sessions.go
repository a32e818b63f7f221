// Package cache holds the redis-backed session cache and the fixed-window
// counters used for rate limiting. Both are flat modules composed over the
// same client; neither is the source of truth, which lives in the signed
// tokens themselves.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rooftopdev/accountd/internal/store"
	"github.com/rooftopdev/accountd/internal/token"
)

// ErrUnavailable wraps any underlying redis failure.
var ErrUnavailable = errors.New("cache unavailable")

// ErrMalformedTokens is returned by Save when either token fails the
// structural three-segment check; nothing is written in that case.
var ErrMalformedTokens = errors.New("malformed session tokens")

const (
	tokensPrefix      = "authTokens:"
	currentUserPrefix = "currentuser:"

	fieldAccess  = "accessToken"
	fieldRefresh = "refreshToken"
)

// Sessions caches the current token pair and the sanitized current-user
// projection per user id. Both entries are written together and carry the
// same TTL so they expire as a unit; a miss on either half means the
// session is absent.
type Sessions struct {
	rdb redis.UniversalClient
	log zerolog.Logger
	ttl time.Duration
}

// NewSessions builds a session cache whose entries live for ttl; callers
// pass the refresh-token lifetime.
func NewSessions(rdb redis.UniversalClient, log zerolog.Logger, ttl time.Duration) *Sessions {
	return &Sessions{rdb: rdb, log: log, ttl: ttl}
}

func tokensKey(userID string) string      { return tokensPrefix + userID }
func currentUserKey(userID string) string { return currentUserPrefix + userID }

// Save writes the token pair and the projection in one pipelined
// transaction so a cancelled request cannot leave them half-updated.
func (s *Sessions) Save(ctx context.Context, userID string, pair token.Pair, user store.CurrentUser) error {
	if !token.IsWellFormed(pair.AccessToken) || !token.IsWellFormed(pair.RefreshToken) {
		s.log.Error().Str("userId", userID).Msg("refusing to cache malformed token pair")
		return ErrMalformedTokens
	}

	payload, err := json.Marshal(user)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, tokensKey(userID), fieldAccess, pair.AccessToken, fieldRefresh, pair.RefreshToken)
		pipe.Expire(ctx, tokensKey(userID), s.ttl)
		pipe.Set(ctx, currentUserKey(userID), payload, s.ttl)
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("userId", userID).Msg("session cache save failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Tokens returns the cached pair. Absent unless both halves are present;
// redis failures are logged and reported as absent rather than propagated.
func (s *Sessions) Tokens(ctx context.Context, userID string) (token.Pair, bool) {
	fields, err := s.rdb.HGetAll(ctx, tokensKey(userID)).Result()
	if err != nil {
		s.log.Error().Err(err).Str("userId", userID).Msg("session cache token lookup failed")
		return token.Pair{}, false
	}

	pair := token.Pair{
		AccessToken:  fields[fieldAccess],
		RefreshToken: fields[fieldRefresh],
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return token.Pair{}, false
	}
	return pair, true
}

// CurrentUser returns the cached projection, or absent on miss or failure.
func (s *Sessions) CurrentUser(ctx context.Context, userID string) (*store.CurrentUser, bool) {
	data, err := s.rdb.Get(ctx, currentUserKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Error().Err(err).Str("userId", userID).Msg("session cache user lookup failed")
		}
		return nil, false
	}

	var user store.CurrentUser
	if err := json.Unmarshal(data, &user); err != nil {
		s.log.Error().Err(err).Str("userId", userID).Msg("session cache user entry corrupt")
		return nil, false
	}
	return &user, true
}

// Invalidate deletes both session entries. Deleting an absent session is a
// no-op, so the call is idempotent.
func (s *Sessions) Invalidate(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, tokensKey(userID), currentUserKey(userID)).Err(); err != nil {
		s.log.Error().Err(err).Str("userId", userID).Msg("session cache invalidation failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
