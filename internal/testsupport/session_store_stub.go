package testsupport

import (
	"context"
	"sync"
	"time"

	"docsplatform/internal/auth"
)

// SessionStoreStub is an in-memory auth.SessionStore for tests. It can seed
// records with arbitrary expirations and inject failures.
type SessionStoreStub struct {
	mu       sync.RWMutex
	sessions map[string]auth.SessionRecord
	getErr   error
	pingErr  error
}

func NewSessionStoreStub() *SessionStoreStub {
	return &SessionStoreStub{sessions: make(map[string]auth.SessionRecord)}
}

func (s *SessionStoreStub) Save(_ context.Context, token string, userID int64, expiresAt, absoluteExpiresAt time.Time) error {
	s.Seed(token, userID, expiresAt, absoluteExpiresAt)
	return nil
}

func (s *SessionStoreStub) Get(_ context.Context, token string) (auth.SessionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.getErr != nil {
		return auth.SessionRecord{}, false, s.getErr
	}
	record, ok := s.sessions[token]
	return record, ok, nil
}

func (s *SessionStoreStub) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

func (s *SessionStoreStub) PurgeExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	for token, record := range s.sessions {
		if now.After(record.ExpiresAt) || (!record.AbsoluteExpiresAt.IsZero() && now.After(record.AbsoluteExpiresAt)) {
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()
	return nil
}

// Seed inserts a record, overriding any existing entry.
func (s *SessionStoreStub) Seed(token string, userID int64, expiresAt, absoluteExpiresAt time.Time) {
	s.mu.Lock()
	s.sessions[token] = auth.SessionRecord{
		Token:             token,
		UserID:            userID,
		ExpiresAt:         expiresAt.UTC(),
		AbsoluteExpiresAt: absoluteExpiresAt.UTC(),
	}
	s.mu.Unlock()
}

// Record returns the stored record for token.
func (s *SessionStoreStub) Record(token string) (auth.SessionRecord, bool) {
	s.mu.RLock()
	record, ok := s.sessions[token]
	s.mu.RUnlock()
	return record, ok
}

// FailGet makes every lookup return err until cleared with nil.
func (s *SessionStoreStub) FailGet(err error) {
	s.mu.Lock()
	s.getErr = err
	s.mu.Unlock()
}

// FailPing makes Ping return err until cleared with nil.
func (s *SessionStoreStub) FailPing(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *SessionStoreStub) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}
