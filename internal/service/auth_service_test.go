package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-user-portal/internal/model"
	"go-user-portal/internal/repository"
	"go-user-portal/internal/token"
	"go-user-portal/pkg/apierror"
)

func newTestService(t *testing.T) (*AuthService, *repository.MemoryUserStore, *repository.MemorySessionStore) {
	t.Helper()

	users := repository.NewMemoryUserStore()
	sessions := repository.NewMemorySessionStore()
	tokens, err := token.NewManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	return NewAuthService(users, sessions, tokens, 5), users, sessions
}

func registerReq(name string, email string, role string) model.RegisterRequest {
	return model.RegisterRequest{Name: name, Email: email, Password: "secret123", Role: role}
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.HTTPStatus)
}

func TestRegister_FirstUserIsAlwaysAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// The requested role is ignored for the very first user.
	first, err := svc.Register(ctx, registerReq("Alice", "alice@example.com", model.RoleUser))
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, first.User.Role)

	second, err := svc.Register(ctx, registerReq("Bob", "bob@example.com", ""))
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, second.User.Role)

	third, err := svc.Register(ctx, registerReq("Carol", "carol@example.com", model.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, third.User.Role)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  model.RegisterRequest
	}{
		{"missing name", model.RegisterRequest{Email: "a@b.co", Password: "secret123"}},
		{"missing email", model.RegisterRequest{Name: "A", Password: "secret123"}},
		{"missing password", model.RegisterRequest{Name: "A", Email: "a@b.co"}},
		{"short password", model.RegisterRequest{Name: "A", Email: "a@b.co", Password: "12345"}},
		{"bad email", model.RegisterRequest{Name: "A", Email: "not-an-email", Password: "secret123"}},
		{"email with spaces", model.RegisterRequest{Name: "A", Email: "a b@c.co", Password: "secret123"}},
		{"unknown role", model.RegisterRequest{Name: "A", Email: "a@b.co", Password: "secret123", Role: "superuser"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.req)
			assertStatus(t, err, http.StatusBadRequest)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerReq("Alice", "alice@example.com", ""))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerReq("Impostor", "alice@example.com", ""))
	assertStatus(t, err, http.StatusConflict)

	count, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegister_ExcludesHashAndStoresSession(t *testing.T) {
	svc, _, sessions := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerReq("Alice", "alice@example.com", ""))
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)

	records, err := sessions.ListForUser(ctx, result.User.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, result.RefreshToken, records[0].Token)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerReq("Alice", "alice@example.com", ""))
	require.NoError(t, err)

	t.Run("unknown email is not found", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody@example.com", "secret123")
		assertStatus(t, err, http.StatusNotFound)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice@example.com", "wrong-password")
		assertStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("email lookup is case-sensitive", func(t *testing.T) {
		_, err := svc.Login(ctx, "ALICE@example.com", "secret123")
		assertStatus(t, err, http.StatusNotFound)
	})

	t.Run("success issues a fresh pair", func(t *testing.T) {
		result, err := svc.Login(ctx, "alice@example.com", "secret123")
		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.Equal(t, "alice@example.com", result.User.Email)
	})
}

func TestSessionCap_KeepsFiveNewest(t *testing.T) {
	svc, _, sessions := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, registerReq("Alice", "alice@example.com", ""))
	require.NoError(t, err)

	issued := []string{first.RefreshToken}
	for i := 0; i < 5; i++ {
		result, err := svc.Login(ctx, "alice@example.com", "secret123")
		require.NoError(t, err)
		issued = append(issued, result.RefreshToken)
	}

	records, err := sessions.ListForUser(ctx, first.User.ID)
	require.NoError(t, err)
	require.Len(t, records, 5)

	live := map[string]bool{}
	for _, rec := range records {
		live[rec.Token] = true
	}

	// The oldest of the six sessions is the one evicted.
	assert.False(t, live[issued[0]], "oldest session should be evicted")
	for _, tok := range issued[1:] {
		assert.True(t, live[tok])
	}
}

func TestRefresh(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerReq("Alice", "alice@example.com", ""))
	require.NoError(t, err)

	t.Run("success issues access token without rotating refresh", func(t *testing.T) {
		accessToken, err := svc.Refresh(ctx, result.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, accessToken)

		// The same refresh token keeps working.
		again, err := svc.Refresh(ctx, result.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, again)
	})

	t.Run("garbage token is unauthorized", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "garbage")
		assertStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("revoked token is unauthorized despite valid signature", func(t *testing.T) {
		require.NoError(t, svc.Logout(ctx, result.RefreshToken))

		_, err := svc.Refresh(ctx, result.RefreshToken)
		assertStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("deleted user is unauthorized", func(t *testing.T) {
		login, err := svc.Login(ctx, "alice@example.com", "secret123")
		require.NoError(t, err)

		users.Delete(ctx, login.User.ID)

		_, err = svc.Refresh(ctx, login.RefreshToken)
		assertStatus(t, err, http.StatusUnauthorized)
	})
}

func TestLogout(t *testing.T) {
	svc, _, sessions := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerReq("Alice", "alice@example.com", ""))
	require.NoError(t, err)

	t.Run("invalid token still succeeds", func(t *testing.T) {
		assert.NoError(t, svc.Logout(ctx, "not-even-a-jwt"))
	})

	t.Run("valid token revokes the session", func(t *testing.T) {
		require.NoError(t, svc.Logout(ctx, result.RefreshToken))

		_, err := sessions.Find(ctx, result.RefreshToken, result.User.ID)
		assert.ErrorIs(t, err, model.ErrSessionNotFound)
	})

	t.Run("double logout still succeeds", func(t *testing.T) {
		assert.NoError(t, svc.Logout(ctx, result.RefreshToken))
	})
}

func TestListUsers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	emails := []string{"a@example.com", "b@example.com", "c@example.com"}
	for _, email := range emails {
		_, err := svc.Register(ctx, registerReq("User", email, ""))
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	t.Run("defaults applied", func(t *testing.T) {
		result, err := svc.ListUsers(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Page)
		assert.Equal(t, 10, result.Limit)
		assert.Equal(t, 3, result.Total)
		assert.Len(t, result.Users, 3)
	})

	t.Run("newest first with paging", func(t *testing.T) {
		result, err := svc.ListUsers(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, result.Users, 2)
		assert.Equal(t, "c@example.com", result.Users[0].Email)
		assert.Equal(t, "b@example.com", result.Users[1].Email)

		rest, err := svc.ListUsers(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, rest.Users, 1)
		assert.Equal(t, "a@example.com", rest.Users[0].Email)
	})

	t.Run("limit clamped", func(t *testing.T) {
		result, err := svc.ListUsers(ctx, 1, 100000)
		require.NoError(t, err)
		assert.Equal(t, 100, result.Limit)
	})
}

func TestSweepRemovesExpiredRecords(t *testing.T) {
	_, _, sessions := newTestService(t)
	ctx := context.Background()

	require.NoError(t, sessions.Store(ctx, "dead", "u1", time.Now().Add(-time.Minute)))
	require.NoError(t, sessions.Store(ctx, "live", "u1", time.Now().Add(time.Hour)))

	// Expired records are invisible before the sweep runs at all.
	_, err := sessions.Find(ctx, "dead", "u1")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	purged, err := sessions.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	_, err = sessions.Find(ctx, "live", "u1")
	assert.NoError(t, err)
}

func TestStoreRefreshToken_DuplicateIsNoop(t *testing.T) {
	svc, _, sessions := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerReq("Alice", "alice@example.com", ""))
	require.NoError(t, err)

	expiresAt, err := token.ExpiresAt(result.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, svc.storeRefreshToken(ctx, result.User.ID, result.RefreshToken, expiresAt))

	records, err := sessions.ListForUser(ctx, result.User.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestListUsersPropagatesStoreErrors(t *testing.T) {
	users := failingUserStore{}
	sessions := repository.NewMemorySessionStore()
	tokens, err := token.NewManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	svc := NewAuthService(users, sessions, tokens, 5)

	_, err = svc.ListUsers(context.Background(), 1, 10)
	assert.ErrorIs(t, err, errStoreDown)
}

var errStoreDown = errors.New("store down")

type failingUserStore struct{}

func (failingUserStore) Create(context.Context, model.User) error { return errStoreDown }
func (failingUserStore) FindByID(context.Context, string) (model.User, error) {
	return model.User{}, errStoreDown
}
func (failingUserStore) FindByEmail(context.Context, string) (model.User, error) {
	return model.User{}, errStoreDown
}
func (failingUserStore) ExistsByEmail(context.Context, string) (bool, error) {
	return false, errStoreDown
}
func (failingUserStore) Count(context.Context) (int, error) { return 0, errStoreDown }
func (failingUserStore) List(context.Context, int, int) ([]model.PublicUser, error) {
	return nil, errStoreDown
}
