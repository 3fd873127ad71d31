package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-user-portal/internal/model"
)

// MemoryUserStore and MemorySessionStore are map-backed implementations of
// the service store interfaces. They back the unit tests and are handy for
// running the server without Postgres.

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]model.User
	seq   int
	order map[string]int
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: map[string]model.User{},
		order: map[string]int{},
	}
}

func (s *MemoryUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return model.ErrEmailTaken
		}
	}

	s.seq++
	s.users[u.ID] = u
	s.order[u.ID] = s.seq
	return nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *MemoryUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.FindByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (s *MemoryUserStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryUserStore) List(_ context.Context, limit int, offset int) ([]model.PublicUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	// Newest first, insertion order as the tie-break.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return s.order[all[i].ID] > s.order[all[j].ID]
	})

	users := make([]model.PublicUser, 0, limit)
	for i := offset; i < len(all) && len(users) < limit; i++ {
		users = append(users, all[i].Public())
	}
	return users, nil
}

// Delete exists for test setup (simulating a deactivated account); the API
// itself never removes users.
func (s *MemoryUserStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	delete(s.order, id)
}

type MemorySessionStore struct {
	mu      sync.RWMutex
	records map[string]model.RefreshTokenRecord
	seq     int
	order   map[string]int
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		records: map[string]model.RefreshTokenRecord{},
		order:   map[string]int{},
	}
}

func (s *MemorySessionStore) Store(_ context.Context, token string, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[token]; exists {
		return nil
	}

	s.seq++
	s.records[token] = model.RefreshTokenRecord{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	s.order[token] = s.seq
	return nil
}

func (s *MemorySessionStore) Find(_ context.Context, token string, userID string) (model.RefreshTokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[token]
	if !ok || rec.UserID != userID || rec.Expired(time.Now()) {
		return model.RefreshTokenRecord{}, model.ErrSessionNotFound
	}
	return rec, nil
}

func (s *MemorySessionStore) ListForUser(_ context.Context, userID string) ([]model.RefreshTokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	records := make([]model.RefreshTokenRecord, 0)
	for _, rec := range s.records {
		if rec.UserID == userID && !rec.Expired(now) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return s.order[records[i].Token] > s.order[records[j].Token]
	})
	return records, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, token string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[token]; ok && rec.UserID == userID {
		delete(s.records, token)
		delete(s.order, token)
	}
	return nil
}

func (s *MemorySessionStore) DeleteTokens(_ context.Context, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range tokens {
		delete(s.records, token)
		delete(s.order, token)
	}
	return nil
}

func (s *MemorySessionStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var purged int64
	for token, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, token)
			delete(s.order, token)
			purged++
		}
	}
	return purged, nil
}
