package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupTTL bounds how long a delivery key is remembered.
const DedupTTL = 7 * 24 * time.Hour

// Deduper records deliveries so a redelivered event does not resend mail.
type Deduper interface {
	// FirstDelivery reports true the first time key is seen.
	FirstDelivery(ctx context.Context, key string) (bool, error)
}

// RedisDeduper keeps delivery keys in Redis with SET NX.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper builds a deduper over client.
func NewRedisDeduper(client redis.UniversalClient) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: "notify:", ttl: DedupTTL}
}

// FirstDelivery sets the key if absent.
func (d *RedisDeduper) FirstDelivery(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

// MemoryDeduper is a process-local Deduper.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryDeduper returns an empty deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

// FirstDelivery records key.
func (d *MemoryDeduper) FirstDelivery(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = struct{}{}
	return true, nil
}
