// Package middleware holds the HTTP interceptors shared across endpoints:
// request logging, fixed-window rate limiting, session authentication, and
// the refresh-token rotation gate. Every interceptor has the same shape,
// and Chain composes them so the first one listed runs outermost.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rooftopdev/accountd/internal/apperr"
	"github.com/rooftopdev/accountd/internal/store"
	"github.com/rooftopdev/accountd/internal/token"
)

// Middleware is the uniform interceptor shape.
type Middleware func(http.Handler) http.Handler

// ErrorFunc renders an error response; the transport layer supplies it so
// interceptors stay ignorant of the wire format.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// Chain wraps h so that the first middleware listed is the outermost one.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// AccessCookie is the cookie carrying the access token.
const AccessCookie = "accessToken"

// RefreshCookie is the cookie carrying the refresh token.
const RefreshCookie = "refreshToken"

type contextKey int

const (
	userIDKey contextKey = iota
	currentUserKey
)

// UserID returns the authenticated user id, if Authenticate ran.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// CurrentUser returns the cached projection attached by Authenticate. A
// valid session may still have no projection when the cache was evicted.
func CurrentUser(ctx context.Context) (*store.CurrentUser, bool) {
	u, ok := ctx.Value(currentUserKey).(*store.CurrentUser)
	return u, ok && u != nil
}

// RequestLogger emits one structured line per request.
func RequestLogger(log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("ip", ClientIP(r)).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ClientIP resolves the caller address, trusting the first hop of
// X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Counter is the slice of the cache this package needs for rate limiting.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit rejects a caller once it exceeds max hits on operation within a
// fixed window. Counting is per client IP; a counter outage fails open so
// the cache cannot take logins down with it.
func RateLimit(counters Counter, log zerolog.Logger, operation string,
	window time.Duration, max int, onError ErrorFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("rl:%s:%s", ClientIP(r), operation)
			count, err := counters.Hit(r.Context(), key, window)
			if err != nil {
				log.Warn().Err(err).Str("operation", operation).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(max) {
				onError(w, r, apperr.New(apperr.KindRateLimited,
					"too many requests, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Verifier is the slice of the token service the authenticator needs.
type Verifier interface {
	Verify(kind token.Kind, tokenStr string) (*token.Claims, error)
}

// SessionReader resolves the cached projection for an authenticated user.
type SessionReader interface {
	CurrentUser(ctx context.Context, userID string) (*store.CurrentUser, bool)
}

// SessionTokens is the slice of the cache the refresh rotator needs.
type SessionTokens interface {
	Tokens(ctx context.Context, userID string) (token.Pair, bool)
	Invalidate(ctx context.Context, userID string) error
}

// RefreshVerifier decodes and verifies refresh tokens.
type RefreshVerifier interface {
	Decode(tokenStr string) (*token.Claims, error)
	Verify(kind token.Kind, tokenStr string) (*token.Claims, error)
}

// RefreshRotate gates the refresh flow. The cached pair is the arbiter: the
// presented token must byte-equal the cached refresh token, and any
// mismatch (including an absent session) is treated as reuse of a
// superseded token and revokes the session outright. Only after that gate
// does the cryptographic check run; on success the wrapped handler issues
// the new pair for the user id attached to the context.
func RefreshRotate(tokens RefreshVerifier, sessions SessionTokens,
	log zerolog.Logger, onError ErrorFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deny := func() {
				onError(w, r, apperr.New(apperr.KindAuthentication,
					"session is no longer valid, please log in again"))
			}

			cookie, err := r.Cookie(RefreshCookie)
			if err != nil || cookie.Value == "" {
				deny()
				return
			}

			claims, err := tokens.Decode(cookie.Value)
			if err != nil {
				deny()
				return
			}

			cached, ok := sessions.Tokens(r.Context(), claims.UserID)
			if !ok || cached.RefreshToken != cookie.Value {
				if err := sessions.Invalidate(r.Context(), claims.UserID); err != nil {
					log.Error().Err(err).Str("userId", claims.UserID).
						Msg("session invalidation after reuse failed")
				}
				log.Warn().Str("userId", claims.UserID).Msg("refresh token reuse detected")
				deny()
				return
			}

			if _, err := tokens.Verify(token.KindRefresh, cookie.Value); err != nil {
				if err := sessions.Invalidate(r.Context(), claims.UserID); err != nil {
					log.Error().Err(err).Str("userId", claims.UserID).
						Msg("session invalidation after bad refresh failed")
				}
				deny()
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate requires a valid access-token cookie. An expired token maps
// to its own error kind so clients know to run the refresh flow instead of
// logging in again. The cached projection is attached when available;
// handlers that need it check for themselves.
func Authenticate(tokens Verifier, sessions SessionReader, onError ErrorFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AccessCookie)
			if err != nil || cookie.Value == "" {
				onError(w, r, apperr.New(apperr.KindAuthentication, "not authenticated"))
				return
			}

			claims, err := tokens.Verify(token.KindAccess, cookie.Value)
			if err != nil {
				if errors.Is(err, token.ErrExpired) {
					onError(w, r, apperr.New(apperr.KindTokenExpired, "access token expired"))
					return
				}
				onError(w, r, apperr.New(apperr.KindAuthentication, "not authenticated"))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			if projection, ok := sessions.CurrentUser(ctx, claims.UserID); ok {
				ctx = context.WithValue(ctx, currentUserKey, projection)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
