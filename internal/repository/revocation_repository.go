package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const revokedKeyPrefix = "attendance:revoked:"

// RevocationRepository remembers logged-out access tokens until they expire.
// Entries live in Redis when a client is configured, otherwise in process memory.
type RevocationRepository struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	memory map[string]time.Time
	now    func() time.Time
}

// NewRevocationRepository constructs a revocation repository. client may be nil.
func NewRevocationRepository(client *redis.Client, logger *zap.Logger) *RevocationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationRepository{client: client, logger: logger, memory: make(map[string]time.Time), now: time.Now}
}

// Revoke records the token id until the given expiry.
func (r *RevocationRepository) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if r.client != nil {
		if err := r.client.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err(); err != nil {
			return fmt.Errorf("redis set revoked %s: %w", tokenID, err)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.memory[tokenID] = until
	return nil
}

// IsRevoked reports whether the token id was revoked and has not yet expired.
func (r *RevocationRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	if r.client != nil {
		n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
		if err != nil {
			return false, fmt.Errorf("redis exists revoked %s: %w", tokenID, err)
		}
		return n > 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.memory[tokenID]
	if !ok {
		return false, nil
	}
	if !r.now().Before(until) {
		delete(r.memory, tokenID)
		return false, nil
	}
	return true, nil
}

func (r *RevocationRepository) pruneLocked() {
	now := r.now()
	for id, until := range r.memory {
		if !now.Before(until) {
			delete(r.memory, id)
		}
	}
}
