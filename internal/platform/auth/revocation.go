package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore tracks issued token IDs so that logout can invalidate
// every outstanding token for a user before natural expiry.
type RevocationStore interface {
	// Track records a freshly issued jti for the user.
	Track(ctx context.Context, jti, userID string, expiresAt time.Time) error
	// Revoke invalidates a single jti.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// RevokeAllForUser invalidates every tracked jti for the user,
	// returning how many were revoked.
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	// IsRevoked reports whether the jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type trackedToken struct {
	UserID    string
	ExpiresAt time.Time
}

// MemoryRevocationStore is a thread-safe in-process RevocationStore.
// Entries expire with their tokens; a background loop sweeps them.
type MemoryRevocationStore struct {
	mu       sync.RWMutex
	tracked  map[string]trackedToken
	revoked  map[string]time.Time
	userJTIs map[string][]string
	done     chan struct{}
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		tracked:  make(map[string]trackedToken),
		revoked:  make(map[string]time.Time),
		userJTIs: make(map[string][]string),
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryRevocationStore) Track(_ context.Context, jti, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[jti] = trackedToken{UserID: userID, ExpiresAt: expiresAt}
	s.userJTIs[userID] = append(s.userJTIs[userID], jti)
	return nil
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = expiresAt
	return nil
}

func (s *MemoryRevocationStore) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, jti := range s.userJTIs[userID] {
		tok, ok := s.tracked[jti]
		if !ok {
			continue
		}
		if _, already := s.revoked[jti]; already {
			continue
		}
		s.revoked[jti] = tok.ExpiresAt
		count++
	}
	return count, nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[jti]
	return ok, nil
}

// Close stops the background sweep. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *MemoryRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes tracked and revoked entries whose tokens have expired.
// Past natural expiry there is nothing left to revoke.
func (s *MemoryRevocationStore) cleanup() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, jti)
		}
	}
	for jti, tok := range s.tracked {
		if now.After(tok.ExpiresAt) {
			delete(s.tracked, jti)
			jtis := s.userJTIs[tok.UserID]
			for i, id := range jtis {
				if id == jti {
					s.userJTIs[tok.UserID] = append(jtis[:i], jtis[i+1:]...)
					break
				}
			}
			if len(s.userJTIs[tok.UserID]) == 0 {
				delete(s.userJTIs, tok.UserID)
			}
		}
	}
}
