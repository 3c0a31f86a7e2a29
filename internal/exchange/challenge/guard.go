// Package challenge guards presentation challenges against replay. A
// challenge is minted once per exchange and may be consumed exactly once;
// a second presentation carrying the same challenge is rejected.
package challenge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"credex/pkg/platform/sentinel"
)

// Guard marks challenges as consumed.
//
// Consume returns:
//   - nil when the challenge is consumed for the first time
//   - sentinel.ErrAlreadyUsed when the challenge was consumed before
type Guard interface {
	Consume(ctx context.Context, challenge string, ttl time.Duration) error
}

// RedisGuard implements Guard with a SET NX tombstone per challenge. The
// tombstone expires with the challenge TTL, after which the exchange-level
// expiry check takes over.
type RedisGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client, prefix: "challenge:used:"}
}

func (g *RedisGuard) Consume(ctx context.Context, challenge string, ttl time.Duration) error {
	ok, err := g.client.SetNX(ctx, g.prefix+challenge, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

// MemoryGuard is the in-process Guard for tests and single-node deployments.
type MemoryGuard struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{used: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Consume(_ context.Context, challenge string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, ok := g.used[challenge]; ok && now.Before(expiry) {
		return sentinel.ErrAlreadyUsed
	}
	// Lapsed tombstones are swept on write, mirroring redis key expiry.
	for used, expiry := range g.used {
		if !now.Before(expiry) {
			delete(g.used, used)
		}
	}
	g.used[challenge] = now.Add(ttl)
	return nil
}

var (
	_ Guard = (*RedisGuard)(nil)
	_ Guard = (*MemoryGuard)(nil)
)
