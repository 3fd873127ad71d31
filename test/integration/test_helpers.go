//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-user-portal/internal/config"
	"go-user-portal/internal/database"
	"go-user-portal/internal/handler"
	"go-user-portal/internal/middleware"
	"go-user-portal/internal/model"
	"go-user-portal/internal/repository"
	"go-user-portal/internal/router"
	"go-user-portal/internal/service"
	"go-user-portal/internal/token"
)

// newPortalServer boots the full stack against the database named by
// TEST_DATABASE_URL (falling back to DATABASE_URL). Each run starts from
// truncated tables, so point it at a throwaway database.
func newPortalServer(t *testing.T) *httptest.Server {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, databaseURL, 5, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))

	_, err = db.Pool.Exec(ctx, "TRUNCATE users, refresh_tokens CASCADE")
	require.NoError(t, err)

	tokens, err := token.NewManager("integration-access-secret", "integration-refresh-secret",
		15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	authService := service.NewAuthService(
		repository.NewUserRepository(db.Pool),
		repository.NewSessionRepository(db.Pool),
		tokens,
		5,
	)

	cfg := &config.Config{
		RequestTimeout:   10 * time.Second,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     10000,
		AuthRateLimitRPM: 10000,
	}

	mux := router.New(cfg,
		middleware.NewAuthMiddleware(tokens, authService),
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(authService),
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

func registerUser(t *testing.T, server *httptest.Server, name string, email string) model.AuthResponse {
	t.Helper()

	status, body := postJSON(t, server, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var payload model.AuthResponse
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

func loginUser(t *testing.T, server *httptest.Server, email string) model.AuthResponse {
	t.Helper()

	status, body := postJSON(t, server, "/api/auth/login", map[string]string{
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var payload model.AuthResponse
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}
