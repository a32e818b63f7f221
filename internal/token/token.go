// Package token issues and verifies the signed session-token pair.
//
// Access and refresh tokens are independent credentials: each is signed with
// its own secret and carries its own lifetime, and a token of one kind must
// never verify against the other kind's secret.
package token

import (
	"errors"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind selects which secret and lifetime a token is verified against.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrInvalid covers malformed tokens, bad signatures, and cross-kind use.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned only for tokens whose signature checked out but
	// whose lifetime elapsed; callers use it to trigger the refresh flow.
	ErrExpired = errors.New("token expired")
)

// jwtShape is the structural three-segment check used before any token is
// cached; it proves nothing about authenticity.
var jwtShape = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

// IsWellFormed reports whether s has the compact signed-token shape.
func IsWellFormed(s string) bool {
	return jwtShape.MatchString(s)
}

// Claims is the payload embedded in both token kinds.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Pair is one issued access/refresh couple. Pairs are superseded wholesale
// on refresh, never mutated.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Config holds the two signing secrets and lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Service signs, decodes, and verifies session tokens with HS256.
type Service struct {
	config Config
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh lifetime must exceed access lifetime")
	}
	return &Service{config: cfg}, nil
}

// RefreshTTL exposes the refresh lifetime; the session cache uses it as the
// TTL for everything it stores.
func (s *Service) RefreshTTL() time.Duration {
	return s.config.RefreshTTL
}

// IssuePair signs a fresh access/refresh pair for userID.
func (s *Service) IssuePair(userID string) (Pair, error) {
	access, err := s.sign(userID, s.config.AccessSecret, s.config.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.sign(userID, s.config.RefreshSecret, s.config.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) sign(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.config.Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Decode extracts claims without verifying the signature. The result is a
// claimed identity only: good enough to look up a cached session, never
// proof of authenticity.
func (s *Service) Decode(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, ErrInvalid
	}
	if claims.UserID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Verify checks signature and expiry against the secret for kind.
// Expired-but-well-signed tokens return ErrExpired; everything else that
// fails returns ErrInvalid.
func (s *Service) Verify(kind Kind, tokenStr string) (*Claims, error) {
	secret := s.config.AccessSecret
	if kind == KindRefresh {
		secret = s.config.RefreshSecret
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// Expired is only meaningful when the signature is intact;
			// jwt/v5 reports combined errors, so re-check the signature bit.
			if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
				return nil, ErrExpired
			}
		}
		return nil, ErrInvalid
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
