// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// ============================================================================
// AUTHENTICATION
// ============================================================================

var (
	// ErrUnauthenticated is returned for a missing or malformed bearer token.
	ErrUnauthenticated = errors.New("missing or invalid bearer token")

	// ErrTokenExpired is returned for an expired JWT.
	ErrTokenExpired = errors.New("token expired")
)

// MaxUserIDLength bounds user ids taken from tokens.
const MaxUserIDLength = 128

// Authenticator maps a bearer token to a user id.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// TokenAuth treats the bearer token itself as the user id.
type TokenAuth struct{}

// Authenticate implements Authenticator.
func (TokenAuth) Authenticate(token string) (string, error) {
	if err := validUserID(token); err != nil {
		return "", err
	}
	return token, nil
}

// JWTAuth accepts HS256 tokens whose subject is the user id.
type JWTAuth struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTAuth creates a JWT authenticator. An empty issuer skips the iss check.
func NewJWTAuth(secret, issuer string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for userID valid for ttl.
func (a *JWTAuth) Issue(userID string, ttl time.Duration) (string, error) {
	if err := validUserID(userID); err != nil {
		return "", err
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate implements Authenticator.
func (a *JWTAuth) Authenticate(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrUnauthenticated
	}
	if !parsed.Valid {
		return "", ErrUnauthenticated
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return "", ErrUnauthenticated
	}
	if err := validUserID(claims.Subject); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func validUserID(id string) error {
	if id == "" || len(id) > MaxUserIDLength {
		return ErrUnauthenticated
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrUnauthenticated
		}
	}
	return nil
}

type ctxKey struct{}

// WithUser returns ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the authenticated user id, or "".
func UserFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// AuthMiddleware resolves the bearer token to a user id and stores it in
// the request context. Requests to paths in public pass through.
func AuthMiddleware(auth Authenticator, logger *zap.Logger, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				logger.Info("AUTH_DENIED", zap.String("ip", GetClientIP(r)), zap.String("reason", "missing_bearer"))
				writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthenticated.Error())
				return
			}

			userID, err := auth.Authenticate(strings.TrimSpace(token))
			if err != nil {
				logger.Info("AUTH_DENIED", zap.String("ip", GetClientIP(r)), zap.Error(err))
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}
