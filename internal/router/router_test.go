package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-user-portal/internal/config"
	"go-user-portal/internal/handler"
	"go-user-portal/internal/middleware"
	"go-user-portal/internal/model"
	"go-user-portal/internal/repository"
	"go-user-portal/internal/service"
	"go-user-portal/internal/token"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		RequestTimeout:   10 * time.Second,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     10000,
		AuthRateLimitRPM: 10000,
	}

	tokens, err := token.NewManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	svc := service.NewAuthService(
		repository.NewMemoryUserStore(),
		repository.NewMemorySessionStore(),
		tokens,
		5,
	)

	mux := New(cfg,
		middleware.NewAuthMiddleware(tokens, svc),
		handler.NewAuthHandler(svc),
		handler.NewUserHandler(svc),
	)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, server *httptest.Server, path string, body any) (int, []byte) {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func getAuthed(t *testing.T, server *httptest.Server, path string, accessToken string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
	require.NoError(t, err)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func register(t *testing.T, server *httptest.Server, name string, email string, role string) model.AuthResponse {
	t.Helper()

	status, body := postJSON(t, server, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": "secret123",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var payload model.AuthResponse
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	server := newTestServer(t)

	// First registered account becomes the admin regardless of the role field.
	admin := register(t, server, "Alice", "alice@example.com", "")
	assert.Equal(t, "User registered successfully", admin.Message)
	assert.Equal(t, model.RoleAdmin, admin.UserData.Role)
	assert.NotEmpty(t, admin.AccessToken)
	assert.NotEmpty(t, admin.RefreshToken)

	plain := register(t, server, "Bob", "bob@example.com", "")
	assert.Equal(t, model.RoleUser, plain.UserData.Role)

	t.Run("login with wrong password", func(t *testing.T) {
		status, _ := postJSON(t, server, "/api/auth/login", map[string]string{
			"email":    "bob@example.com",
			"password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("login with unknown email", func(t *testing.T) {
		status, _ := postJSON(t, server, "/api/auth/login", map[string]string{
			"email":    "nobody@example.com",
			"password": "secret123",
		})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		status, _ := postJSON(t, server, "/api/auth/register", map[string]string{
			"name":     "Impostor",
			"email":    "bob@example.com",
			"password": "secret123",
		})
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("me returns the authenticated user", func(t *testing.T) {
		status, body := getAuthed(t, server, "/api/auth/me", plain.AccessToken)
		require.Equal(t, http.StatusOK, status)

		var payload model.MeResponse
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "bob@example.com", payload.UserData.Email)
	})

	t.Run("me without token", func(t *testing.T) {
		status, _ := getAuthed(t, server, "/api/auth/me", "")
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("user listing is admin only", func(t *testing.T) {
		status, _ := getAuthed(t, server, "/api/users", plain.AccessToken)
		assert.Equal(t, http.StatusForbidden, status)

		status, body := getAuthed(t, server, "/api/users", admin.AccessToken)
		require.Equal(t, http.StatusOK, status)

		var payload model.UserListResponse
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, 2, payload.Total)
		assert.Equal(t, 1, payload.Page)
		assert.Equal(t, 10, payload.Limit)

		emails := make([]string, 0, len(payload.Users))
		for _, u := range payload.Users {
			emails = append(emails, u.Email)
		}
		assert.Contains(t, emails, "alice@example.com")
		assert.Contains(t, emails, "bob@example.com")
	})

	t.Run("refresh issues a new access token", func(t *testing.T) {
		status, body := postJSON(t, server, "/api/auth/refresh", map[string]string{
			"refreshToken": plain.RefreshToken,
		})
		require.Equal(t, http.StatusOK, status)

		var payload model.RefreshResponse
		require.NoError(t, json.Unmarshal(body, &payload))
		require.NotEmpty(t, payload.AccessToken)

		status, _ = getAuthed(t, server, "/api/auth/me", payload.AccessToken)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("logout revokes the refresh token", func(t *testing.T) {
		status, body := postJSON(t, server, "/api/auth/logout", map[string]string{
			"refreshToken": plain.RefreshToken,
		})
		require.Equal(t, http.StatusOK, status)

		var payload model.LogoutResponse
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.True(t, payload.Success)
		assert.Equal(t, "Logged out successfully", payload.Message)

		status, _ = postJSON(t, server, "/api/auth/refresh", map[string]string{
			"refreshToken": plain.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("logout with a dead token still succeeds", func(t *testing.T) {
		status, _ := postJSON(t, server, "/api/auth/logout", map[string]string{
			"refreshToken": "not-a-real-token",
		})
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("logout without a token is a validation error", func(t *testing.T) {
		status, _ := postJSON(t, server, "/api/auth/logout", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestErrorEnvelope(t *testing.T) {
	server := newTestServer(t)

	status, body := postJSON(t, server, "/api/auth/register", map[string]string{
		"name":     "A",
		"email":    "not-an-email",
		"password": "secret123",
	})
	require.Equal(t, http.StatusBadRequest, status)

	var payload model.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.False(t, payload.Success)
	require.NotNil(t, payload.Error)
	assert.NotEmpty(t, payload.Error.Code)
	assert.NotEmpty(t, payload.Error.Message)
}

func TestSecurityHeaders(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}
