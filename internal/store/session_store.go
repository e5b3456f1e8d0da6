package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/wizard"
)

// DefaultTTL is how long a session snapshot outlives its last change.
const DefaultTTL = 24 * time.Hour

// SessionStore keeps wizard snapshots in redis under session:<id>.
type SessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSessionStore(redisClient *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionStore{redis: redisClient, ttl: ttl}
}

func key(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func (s *SessionStore) Save(ctx context.Context, snap wizard.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.redis.Set(ctx, key(snap.ID), data, s.ttl).Err()
}

func (s *SessionStore) Load(ctx context.Context, id string) (*wizard.Snapshot, error) {
	data, err := s.redis.Get(ctx, key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, wizard.ErrSessionNotFound
		}
		return nil, err
	}

	var snap wizard.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	n, err := s.redis.Del(ctx, key(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return wizard.ErrSessionNotFound
	}
	return nil
}
