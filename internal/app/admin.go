package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims is the token a monitor client presents on adminJoinAll.
type AdminClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// JWTAdminAuthorizer accepts HS256 tokens carrying the admin role.
type JWTAdminAuthorizer struct {
	secret []byte
	role   string
}

func NewJWTAdminAuthorizer(secret, role string) *JWTAdminAuthorizer {
	return &JWTAdminAuthorizer{secret: []byte(secret), role: role}
}

func (a *JWTAdminAuthorizer) AuthorizeAdmin(_ context.Context, token string) (domain.UserID, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("%w: admin access disabled", domain.ErrForbidden)
	}
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrForbidden, err)
	}
	if !slices.Contains(claims.Roles, a.role) {
		return "", fmt.Errorf("%w: missing role %q", domain.ErrForbidden, a.role)
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		sub = "admin"
	}
	return domain.UserID(sub), nil
}

// Issue signs a token for subject. Used by tooling and tests.
func (a *JWTAdminAuthorizer) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: []string{a.role},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
