package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hakeemcare/clinic-booking/internal/user"
)

// Identity is the authenticated caller, extracted from a verified bearer
// token. Token issuance happens in the auth service, not here.
type Identity struct {
	UserID uuid.UUID
	Role   user.Role
}

const identityKey contextKey = "identity"

// AuthMiddleware verifies the Authorization bearer token (HS256) and puts
// the caller's identity on the request context.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing_token", "Authorization bearer token required")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			identity, err := parseIdentity(raw, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token could not be verified")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseIdentity(raw string, secret []byte) (Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid sub claim: %w", err)
	}

	role, _ := claims["role"].(string)
	switch user.Role(role) {
	case user.RolePatient, user.RolePractitioner:
	default:
		return Identity{}, fmt.Errorf("invalid role claim %q", role)
	}

	return Identity{UserID: userID, Role: user.Role(role)}, nil
}

// IdentityFrom retrieves the authenticated caller from the context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequireRole rejects callers whose role does not match.
func RequireRole(role user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok || identity.Role != role {
				writeError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("%s role required", role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
