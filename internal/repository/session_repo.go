package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-user-portal/internal/model"
)

// SessionRepository persists refresh-token records. A record past its
// expires_at is logically absent: Find filters it out even before the
// periodic sweep physically deletes it.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Store inserts a refresh-token record. Token strings are globally unique by
// construction of the signer, so a colliding insert is treated as a no-op.
func (r *SessionRepository) Store(ctx context.Context, token string, userID string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token) DO NOTHING`,
		token, userID, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Find returns the live record for (token, user). Revoked, unknown, and
// expired tokens are indistinguishable to the caller: all come back as
// model.ErrSessionNotFound.
func (r *SessionRepository) Find(ctx context.Context, token string, userID string) (model.RefreshTokenRecord, error) {
	var rec model.RefreshTokenRecord
	err := r.pool.QueryRow(ctx,
		`SELECT token, user_id, expires_at, created_at
		 FROM refresh_tokens
		 WHERE token = $1 AND user_id = $2 AND expires_at > now()`,
		token, userID).
		Scan(&rec.Token, &rec.UserID, &rec.ExpiresAt, &rec.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshTokenRecord{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.RefreshTokenRecord{}, fmt.Errorf("find refresh token: %w", err)
	}
	return rec, nil
}

// ListForUser returns the user's live records, newest first.
func (r *SessionRepository) ListForUser(ctx context.Context, userID string) ([]model.RefreshTokenRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT token, user_id, expires_at, created_at
		 FROM refresh_tokens
		 WHERE user_id = $1 AND expires_at > now()
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer rows.Close()

	records := make([]model.RefreshTokenRecord, 0)
	for rows.Next() {
		var rec model.RefreshTokenRecord
		if err := rows.Scan(&rec.Token, &rec.UserID, &rec.ExpiresAt, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes the record for (token, user). Deleting a record that does
// not exist is not an error.
func (r *SessionRepository) Delete(ctx context.Context, token string, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE token = $1 AND user_id = $2`, token, userID)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE token = ANY($1)`, tokens)
	if err != nil {
		return fmt.Errorf("delete refresh tokens: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
