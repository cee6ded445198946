// Package auth verifies bearer credentials: HS256 JWTs issued by the main
// app, or API keys verified by it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	// ErrRevokedKey is returned for an API key that exists but was revoked.
	ErrRevokedKey = errors.New("api key revoked")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	// Credential is the raw bearer value, forwarded to the main app when
	// consuming credits.
	Credential string
	APIKey     bool
}

// Claims is the JWT payload issued by the main app.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// KeyVerifier resolves an API key to its owner.
type KeyVerifier interface {
	VerifyAPIKey(ctx context.Context, key string) (Principal, error)
}

type Authenticator struct {
	secret []byte
	keys   KeyVerifier
	now    func() time.Time
}

// New creates an Authenticator. keys may be nil, in which case API keys are
// rejected.
func New(secret string, keys KeyVerifier) *Authenticator {
	return &Authenticator{secret: []byte(secret), keys: keys, now: time.Now}
}

// Authenticate checks an Authorization header value.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Principal, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Bearer "))
	if token == "" {
		return Principal{}, ErrMissingToken
	}
	if strings.Count(token, ".") == 2 {
		return a.verifyJWT(token)
	}
	if a.keys == nil {
		return Principal{}, ErrInvalidToken
	}
	p, err := a.keys.VerifyAPIKey(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	p.Credential, p.APIKey = token, true
	return p, nil
}

func (a *Authenticator) verifyJWT(raw string) (Principal, error) {
	if len(a.secret) == 0 {
		return Principal{}, fmt.Errorf("%w: JWT verification is not configured", ErrInvalidToken)
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpiredToken
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return Principal{UserID: userID, Email: claims.Email, Credential: raw}, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the auth middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
