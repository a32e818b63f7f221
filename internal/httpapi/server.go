package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/rooftopdev/accountd/internal/auth"
	"github.com/rooftopdev/accountd/internal/mailqueue"
	"github.com/rooftopdev/accountd/internal/middleware"
)

// Enqueuer is the slice of the mail queue the transport needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job mailqueue.Job) error
}

// Options carries the transport tunables.
type Options struct {
	AppName    string
	Production bool

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RateLimitWindow time.Duration
	RateLimitMax    int
}

// SessionCache is the session-cache surface the interceptors consume.
type SessionCache interface {
	middleware.SessionReader
	middleware.SessionTokens
}

// Server binds the auth service to the HTTP surface.
type Server struct {
	svc   *auth.Service
	queue Enqueuer
	log   zerolog.Logger
	opts  Options

	tokens        middleware.RefreshVerifier
	sessionTokens SessionCache
	counters      middleware.Counter
}

// NewServer assembles the transport. The token verifier, session cache, and
// counter power the interceptors; everything else flows through svc.
func NewServer(svc *auth.Service, queue Enqueuer, tokens middleware.RefreshVerifier,
	sessions SessionCache, counters middleware.Counter,
	log zerolog.Logger, opts Options) *Server {
	return &Server{
		svc:           svc,
		queue:         queue,
		log:           log,
		opts:          opts,
		tokens:        tokens,
		sessionTokens: sessions,
		counters:      counters,
	}
}

// Router builds the route table. Credential-bearing operations sit behind a
// per-IP fixed-window limiter; session-bound ones behind the authenticator.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.log))

	limited := func(operation string, h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, middleware.RateLimit(
			s.counters, s.log, operation,
			s.opts.RateLimitWindow, s.opts.RateLimitMax, s.writeError))
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h,
			middleware.Authenticate(s.tokens, s.sessionTokens, s.writeError))
	}
	// A failed rotation revokes the session, so the stale cookies go too.
	rotated := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, middleware.RefreshRotate(
			s.tokens, s.sessionTokens, s.log,
			func(w http.ResponseWriter, r *http.Request, err error) {
				s.clearSessionCookies(w)
				s.writeError(w, r, err)
			}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Method(http.MethodPost, "/signup", limited("signup", s.handleSignup))
		r.Method(http.MethodPost, "/activate", limited("activate", s.handleActivate))
		r.Method(http.MethodPost, "/login", limited("login", s.handleLogin))
		r.Method(http.MethodPost, "/forgot-password", limited("forgotPassword", s.handleForgotPassword))
		r.Method(http.MethodPost, "/reset-password", limited("resetPassword", s.handleResetPassword))
		r.Method(http.MethodPost, "/refresh", rotated(s.handleRefresh))
		r.Method(http.MethodPost, "/logout", authed(s.handleLogout))
	})

	r.Method(http.MethodGet, "/user/me", authed(s.handleMe))
	r.Get("/status", s.handleStatus)

	return r
}

// setSessionCookies writes both token cookies. They are httpOnly and
// strict-same-site; Secure is dropped only outside production so local
// development over plain HTTP works.
func (s *Server) setSessionCookies(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, s.sessionCookie(middleware.AccessCookie, access, s.opts.AccessTokenTTL))
	http.SetCookie(w, s.sessionCookie(middleware.RefreshCookie, refresh, s.opts.RefreshTokenTTL))
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.sessionCookie(middleware.AccessCookie, "", -time.Second))
	http.SetCookie(w, s.sessionCookie(middleware.RefreshCookie, "", -time.Second))
}

func (s *Server) sessionCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   s.opts.Production,
		SameSite: http.SameSiteStrictMode,
	}
}
