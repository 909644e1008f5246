package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Snapshot is the last known state of a run as shown to pollers.
type Snapshot struct {
	Progress
	Status string `json:"status"`
}

// ProgressStore keeps run snapshots while a batch is in flight.
type ProgressStore interface {
	Save(ctx context.Context, s Snapshot) error
	Load(ctx context.Context, runID uuid.UUID) (Snapshot, bool, error)
}

// MemoryProgress is a process local ProgressStore.
type MemoryProgress struct {
	cache sync.Map // runID -> Snapshot
}

func NewMemoryProgress() *MemoryProgress {
	return &MemoryProgress{}
}

func (m *MemoryProgress) Save(_ context.Context, s Snapshot) error {
	m.cache.Store(s.RunID, s)
	return nil
}

func (m *MemoryProgress) Load(_ context.Context, runID uuid.UUID) (Snapshot, bool, error) {
	v, ok := m.cache.Load(runID)
	if !ok {
		return Snapshot{}, false, nil
	}
	return v.(Snapshot), true, nil
}

// RedisProgress shares snapshots between instances behind the same redis.
type RedisProgress struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisProgress(client redis.Cmdable, ttl time.Duration) *RedisProgress {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProgress{client: client, ttl: ttl, prefix: "dispatch:progress:"}
}

func (r *RedisProgress) key(id uuid.UUID) string {
	return r.prefix + id.String()
}

func (r *RedisProgress) Save(ctx context.Context, s Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(s.RunID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis progress save: %w", err)
	}
	return nil
}

func (r *RedisProgress) Load(ctx context.Context, runID uuid.UUID) (Snapshot, bool, error) {
	b, err := r.client.Get(ctx, r.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("redis progress load: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, false, err
	}
	return s, true, nil
}
