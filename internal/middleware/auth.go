package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go-user-portal/internal/model"
)

type tokenVerifier interface {
	VerifyAccess(tokenString string) (*model.AuthClaims, error)
}

type userResolver interface {
	GetUserByID(ctx context.Context, id string) (model.PublicUser, error)
}

type contextKey string

const authUserContextKey contextKey = "auth_user"

type AuthMiddleware struct {
	tokens tokenVerifier
	users  userResolver
}

func NewAuthMiddleware(tokens tokenVerifier, users userResolver) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// RequireAuth validates the bearer access token and attaches the resolved
// user to the request context. The store lookup by subject id is deliberate:
// a deleted user loses access immediately, even while their access token is
// still within its TTL. Every failure maps to the same 401 body.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeGateError(w, "UNAUTHORIZED", "not authorized to access this route")
			return
		}

		claims, err := m.tokens.VerifyAccess(strings.TrimSpace(header[7:]))
		if err != nil {
			writeGateError(w, "UNAUTHORIZED", "not authorized to access this route")
			return
		}

		user, err := m.users.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			writeGateError(w, "UNAUTHORIZED", "not authorized to access this route")
			return
		}

		ctx := context.WithValue(r.Context(), authUserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	roleSet := map[string]struct{}{}
	for _, role := range allowedRoles {
		roleSet[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeGateError(w, "UNAUTHORIZED", "not authorized to access this route")
				return
			}

			if _, allowed := roleSet[strings.ToLower(user.Role)]; !allowed {
				writeGateError(w, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func UserFromContext(ctx context.Context) (model.PublicUser, bool) {
	user, ok := ctx.Value(authUserContextKey).(model.PublicUser)
	return user, ok
}

func writeGateError(w http.ResponseWriter, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	if code == "FORBIDDEN" {
		w.WriteHeader(http.StatusForbidden)
	} else {
		w.WriteHeader(http.StatusUnauthorized)
	}

	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}
