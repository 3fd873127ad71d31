package model

import "time"

// RefreshTokenRecord is one live session: the signed refresh token string is
// the record's key. Records are created on register/login, deleted on logout
// or cap eviction, and never updated in place.
type RefreshTokenRecord struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r RefreshTokenRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
