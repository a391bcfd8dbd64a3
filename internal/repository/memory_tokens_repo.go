package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veritoken/veritoken/pkg/domain"
)

type memoryRecord struct {
	recordID uuid.UUID
	token    domain.Token
}

// MemoryTokensRepository keeps verification tokens in memory. It backs tests
// and single-process dev deployments; records do not survive a restart.
type MemoryTokensRepository struct {
	mu      sync.RWMutex
	records []memoryRecord
}

// NewMemoryTokensRepository creates an empty in-memory tokens repository.
func NewMemoryTokensRepository() *MemoryTokensRepository {
	return &MemoryTokensRepository{}
}

// Create persists a new token record.
func (r *MemoryTokensRepository) Create(ctx context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, memoryRecord{
		recordID: uuid.New(),
		token:    cloneToken(*token),
	})
	return nil
}

// FindByID retrieves the token with the given persisted id and type.
func (r *MemoryTokensRepository) FindByID(ctx context.Context, id, typ string) (*domain.Token, error) {
	return r.find(func(t domain.Token) bool {
		return t.ID == id && t.Type == typ
	})
}

// FindByUser retrieves the newest token for (type, user) regardless of expiry.
func (r *MemoryTokensRepository) FindByUser(ctx context.Context, typ, userID string) (*domain.Token, error) {
	return r.find(func(t domain.Token) bool {
		return t.Type == typ && t.UserID == userID
	})
}

// FindLive retrieves the newest token for (type, user) whose expiry is at or
// after now.
func (r *MemoryTokensRepository) FindLive(ctx context.Context, typ, userID string, now time.Time) (*domain.Token, error) {
	return r.find(func(t domain.Token) bool {
		return t.Type == typ && t.UserID == userID && !t.ExpiresAt.Before(now)
	})
}

// DeleteByID deletes the token with the given persisted id and type.
func (r *MemoryTokensRepository) DeleteByID(ctx context.Context, id, typ string) error {
	r.delete(func(t domain.Token) bool {
		return t.ID == id && t.Type == typ
	})
	return nil
}

// DeleteByUser deletes all tokens for (type, user).
func (r *MemoryTokensRepository) DeleteByUser(ctx context.Context, typ, userID string) error {
	r.delete(func(t domain.Token) bool {
		return t.Type == typ && t.UserID == userID
	})
	return nil
}

// DeleteExpired deletes all tokens whose expiry is strictly before now.
func (r *MemoryTokensRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.delete(func(t domain.Token) bool {
		return t.ExpiresAt.Before(now)
	}), nil
}

// CountByUser counts tokens for (type, user).
func (r *MemoryTokensRepository) CountByUser(ctx context.Context, typ, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, rec := range r.records {
		if rec.token.Type == typ && rec.token.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *MemoryTokensRepository) find(match func(domain.Token) bool) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.Token
	for _, rec := range r.records {
		if !match(rec.token) {
			continue
		}
		if found == nil || rec.token.IssuedAt.After(found.IssuedAt) {
			t := cloneToken(rec.token)
			found = &t
		}
	}
	if found == nil {
		return nil, domain.ErrTokenNotFound
	}
	return found, nil
}

func (r *MemoryTokensRepository) delete(match func(domain.Token) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	var deleted int64
	for _, rec := range r.records {
		if match(rec.token) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return deleted
}

func cloneToken(t domain.Token) domain.Token {
	if t.Metadata != nil {
		metadata := make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			metadata[k] = v
		}
		t.Metadata = metadata
	}
	return t
}
