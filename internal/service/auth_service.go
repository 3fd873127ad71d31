package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-user-portal/internal/model"
	"go-user-portal/internal/token"
	"go-user-portal/pkg/apierror"
)

const (
	bcryptCost        = 12
	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type UserStore interface {
	Create(ctx context.Context, u model.User) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, limit int, offset int) ([]model.PublicUser, error)
}

type SessionStore interface {
	Store(ctx context.Context, token string, userID string, expiresAt time.Time) error
	Find(ctx context.Context, token string, userID string) (model.RefreshTokenRecord, error)
	ListForUser(ctx context.Context, userID string) ([]model.RefreshTokenRecord, error)
	Delete(ctx context.Context, token string, userID string) error
	DeleteTokens(ctx context.Context, tokens []string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// AuthResult is what a successful register or login hands back: the user
// minus the hash, plus a fresh token pair.
type AuthResult struct {
	User         model.PublicUser
	AccessToken  string
	RefreshToken string
}

type AuthService struct {
	users       UserStore
	sessions    SessionStore
	tokens      *token.Manager
	maxSessions int
}

func NewAuthService(users UserStore, sessions SessionStore, tokens *token.Manager, maxSessions int) *AuthService {
	if maxSessions <= 0 {
		maxSessions = 5
	}

	return &AuthService{
		users:       users,
		sessions:    sessions,
		tokens:      tokens,
		maxSessions: maxSessions,
	}
}

// Register creates a user and opens a session for it. The very first user in
// an empty store is always an admin, whatever role was asked for; everyone
// after gets the requested role or "user".
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (AuthResult, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	role := strings.TrimSpace(req.Role)

	if name == "" || email == "" || req.Password == "" {
		return AuthResult{}, apierror.BadRequest("required field missing", "")
	}

	if len(req.Password) < minPasswordLength {
		return AuthResult{}, apierror.BadRequest("password must be at least 6 characters", "password")
	}

	if !emailPattern.MatchString(email) {
		return AuthResult{}, apierror.BadRequest("invalid email format", "email")
	}

	if role != "" && role != model.RoleAdmin && role != model.RoleUser {
		return AuthResult{}, apierror.BadRequest("invalid role", role)
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return AuthResult{}, err
	}
	if exists {
		return AuthResult{}, apierror.Conflict("user already exists", "")
	}

	// Not serialized against a concurrent first registration; the race is
	// accepted, matching the email-uniqueness pre-check above.
	count, err := s.users.Count(ctx)
	if err != nil {
		return AuthResult{}, err
	}

	assignedRole := role
	if count == 0 {
		assignedRole = model.RoleAdmin
	} else if assignedRole == "" {
		assignedRole = model.RoleUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return AuthResult{}, err
	}

	user := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         assignedRole,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return AuthResult{}, err
	}

	return s.openSession(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return AuthResult{}, apierror.BadRequest("required field missing", "")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return AuthResult{}, apierror.NotFound("user not found", "")
	}
	if err != nil {
		return AuthResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return AuthResult{}, apierror.Unauthorized("invalid credentials")
	}

	return s.openSession(ctx, user)
}

// Refresh exchanges a live refresh token for a new access token. The refresh
// token itself is not rotated. Every failure mode maps to the same
// unauthorized error so callers cannot probe which tokens the store knows.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", apierror.Unauthorized("invalid or expired refresh token")
	}

	if _, err := s.sessions.Find(ctx, refreshToken, claims.UserID); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return "", apierror.Unauthorized("invalid or expired refresh token")
		}
		return "", err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return "", apierror.Unauthorized("invalid or expired refresh token")
		}
		return "", err
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return "", err
	}

	return accessToken, nil
}

// Logout revokes the session behind the refresh token. A token that fails
// verification is still a successful logout: reporting the failure would tell
// a caller which tokens are real.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}

	return s.sessions.Delete(ctx, refreshToken, claims.UserID)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) ListUsers(ctx context.Context, page int, limit int) (model.UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	total, err := s.users.Count(ctx)
	if err != nil {
		return model.UserListResponse{}, err
	}

	users, err := s.users.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return model.UserListResponse{}, err
	}

	return model.UserListResponse{
		Users: users,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

func (s *AuthService) openSession(ctx context.Context, user model.User) (AuthResult, error) {
	accessToken, _, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return AuthResult{}, err
	}

	refreshToken, expiresAt, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.storeRefreshToken(ctx, user.ID, refreshToken, expiresAt); err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		User:         user.Public(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// storeRefreshToken inserts the record, first evicting the oldest live
// sessions so the user never holds more than maxSessions after the insert.
// Eviction is by creation order, not expiry. The list-evict-insert sequence
// is not atomic: concurrent logins for the same user can transiently exceed
// the cap, and the next insert converges it back. That soft bound is
// accepted rather than paying for per-user serialization.
func (s *AuthService) storeRefreshToken(ctx context.Context, userID string, refreshToken string, expiresAt time.Time) error {
	records, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return err
	}

	if len(records) >= s.maxSessions {
		evict := make([]string, 0, len(records)-s.maxSessions+1)
		for _, rec := range records[s.maxSessions-1:] {
			evict = append(evict, rec.Token)
		}
		if err := s.sessions.DeleteTokens(ctx, evict); err != nil {
			return err
		}
		slog.Info("evicted oldest sessions", "user_id", userID, "count", len(evict))
	}

	return s.sessions.Store(ctx, refreshToken, userID, expiresAt)
}

// StartSessionSweeper periodically purges refresh-token records whose TTL has
// elapsed. Lookups already ignore them; the sweep keeps the table from
// accumulating dead rows. Blocks until ctx is cancelled.
func (s *AuthService) StartSessionSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := s.sessions.DeleteExpired(ctx)
			if err != nil {
				slog.Warn("session sweep failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Info("expired sessions purged", "count", purged)
			}
		}
	}
}
