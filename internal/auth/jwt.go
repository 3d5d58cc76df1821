// Package auth resolves the current user from HS256 bearer tokens and
// carries it through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Vasu1712/buddychat/internal/apperrors"
)

const issuer = "buddychat"

type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token whose subject is userID.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", apperrors.InvalidArg("user id is required")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify validates token and returns the user ID it was issued for.
func (a *Authenticator) Verify(token string) (string, error) {
	if token == "" {
		return "", apperrors.Unauthenticated("no current user")
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid token", err)
	}
	if claims.Subject == "" {
		return "", apperrors.Unauthenticated("token has no subject")
	}
	if !claims.VerifyIssuer(issuer, true) {
		return "", apperrors.Unauthenticated("token issued by another service")
	}
	return claims.Subject, nil
}

type ctxKey struct{}

// WithUser returns a context carrying the authenticated user ID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user ID, or an Unauthenticated error
// when the context carries none.
func UserID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(ctxKey{}).(string)
	if id == "" {
		return "", apperrors.Unauthenticated("no current user")
	}
	return id, nil
}
