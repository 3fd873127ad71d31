// Package token issues and verifies the two token classes used by the API:
// short-lived access tokens (carry subject and role) and longer-lived refresh
// tokens (carry subject only). Each class is signed with its own secret, so
// rotating one secret invalidates only that class.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-user-portal/internal/model"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(accessSecret string, refreshSecret string, accessTTL time.Duration, refreshTTL time.Duration) (*Manager, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccessToken mints an access token for the user. The role claim rides
// in the token so the role gate can run without a store round trip; the
// request gate still re-resolves the user by subject id.
func (m *Manager) IssueAccessToken(user model.User) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(m.accessTTL)

	signed, err := m.sign(jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"typ":  TypeAccess,
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}, m.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// IssueRefreshToken mints a refresh token carrying the subject id only.
func (m *Manager) IssueRefreshToken(user model.User) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(m.refreshTTL)

	signed, err := m.sign(jwt.MapClaims{
		"sub": user.ID,
		"typ": TypeRefresh,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}, m.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return signed, expiresAt, nil
}

func (m *Manager) VerifyAccess(tokenString string) (*model.AuthClaims, error) {
	return m.verify(tokenString, TypeAccess, m.accessSecret)
}

func (m *Manager) VerifyRefresh(tokenString string) (*model.AuthClaims, error) {
	return m.verify(tokenString, TypeRefresh, m.refreshSecret)
}

func (m *Manager) sign(claims jwt.MapClaims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) verify(tokenString string, expectedType string, secret []byte) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, model.ErrUnauthorized
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrTokenExpired
		}
		return nil, model.ErrUnauthorized
	}
	if !parsed.Valid {
		return nil, model.ErrUnauthorized
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrUnauthorized
	}

	typ, _ := claimsMap["typ"].(string)
	if typ != expectedType {
		return nil, model.ErrUnauthorized
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" {
		return nil, model.ErrUnauthorized
	}

	return claims, nil
}

// ExpiresAt reads the exp claim without verifying the signature. The session
// store needs the absolute expiry of a token it just issued; parsing it back
// beats threading timestamps through every call site.
func ExpiresAt(tokenString string) (time.Time, error) {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}

	return exp.Time, nil
}
