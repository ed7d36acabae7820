/*
auth.go - Bearer token identity

PURPOSE:
  Resolves the caller for every /api request. Tokens are HS256 JWTs carrying
  the teacher id (sub), a role and the permitted batch list. Issuing tokens
  for real users is the job of the login service; Issue exists for dev
  tooling and tests.

AUTHORIZATION:
  Batch permission is decided in the attendance package (Principal.Permits).
  RequireRole is the yes/no gate for admin routes.
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/attendance-engine/attendance"
)

const RoleAdmin = "admin"

// Claims is the JWT payload.
type Claims struct {
	Role    string   `json:"role,omitempty"`
	Batches []string `json:"batches"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Issue signs a token for p valid for ttl.
func (a *Authenticator) Issue(p attendance.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	batches := make([]string, len(p.Batches))
	for i, b := range p.Batches {
		batches[i] = string(b)
	}
	claims := Claims{
		Role:    p.Role,
		Batches: batches,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.TeacherID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies raw and returns the principal it carries.
func (a *Authenticator) Parse(raw string) (attendance.Principal, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return attendance.Principal{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return attendance.Principal{}, errors.New("token has no subject")
	}
	p := attendance.Principal{
		TeacherID: attendance.TeacherID(claims.Subject),
		Role:      claims.Role,
	}
	for _, b := range claims.Batches {
		p.Batches = append(p.Batches, attendance.Batch(b))
	}
	return p, nil
}

type principalKey struct{}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing or malformed bearer token", nil)
			return
		}
		p, err := a.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole allows only callers with role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok || p.Role != role {
				writeError(w, http.StatusForbidden, "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, p attendance.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (attendance.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(attendance.Principal)
	return p, ok
}
