package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore tracks the last fire time per (rule, user) pair. The
// in-memory implementation covers a single process; the Redis one lets
// multiple processes share cooldown state.
type CooldownStore interface {
	// Eligible reports whether the key may fire given its cooldown window.
	Eligible(ctx context.Context, key string, cooldown time.Duration) (bool, error)
	// Stamp records a fire at the current time.
	Stamp(ctx context.Context, key string, cooldown time.Duration) error
}

// cooldownKey builds the (rule, user) cooldown key.
func cooldownKey(ruleID, userID string) string {
	return fmt.Sprintf("%s:%s", ruleID, userID)
}

// sweepEvery is how many stamps pass between full sweeps of expired
// in-memory cooldown entries.
const sweepEvery = 256

type cooldownEntry struct {
	firedAt time.Time
	expires time.Time
}

// MemoryCooldowns is the in-process cooldown store. Expired entries are
// dropped on lookup, and a periodic sweep on Stamp clears the ones no lookup
// ever revisits, so the map does not grow for the process lifetime.
type MemoryCooldowns struct {
	mu     sync.Mutex
	fired  map[string]cooldownEntry
	stamps int
	now    func() time.Time
}

// NewMemoryCooldowns creates an empty in-memory cooldown store.
func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{fired: make(map[string]cooldownEntry), now: time.Now}
}

func (m *MemoryCooldowns) Eligible(ctx context.Context, key string, cooldown time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.fired[key]
	if !ok {
		return true, nil
	}
	if m.now().Sub(entry.firedAt) >= cooldown {
		delete(m.fired, key)
		return true, nil
	}
	return false, nil
}

func (m *MemoryCooldowns) Stamp(ctx context.Context, key string, cooldown time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.fired[key] = cooldownEntry{firedAt: now, expires: now.Add(cooldown)}
	m.stamps++
	if m.stamps%sweepEvery == 0 {
		for k, e := range m.fired {
			if !e.expires.After(now) {
				delete(m.fired, k)
			}
		}
	}
	return nil
}

// RedisCooldowns keeps cooldown state in Redis, keyed with a TTL equal to
// the cooldown window, so expiry does the bookkeeping.
type RedisCooldowns struct {
	client *redis.Client
	prefix string
}

// NewRedisCooldowns creates a Redis-backed cooldown store.
func NewRedisCooldowns(client *redis.Client) *RedisCooldowns {
	return &RedisCooldowns{client: client, prefix: "trigger:cooldown:"}
}

func (r *RedisCooldowns) Eligible(ctx context.Context, key string, cooldown time.Duration) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown exists check: %w", err)
	}
	return n == 0, nil
}

func (r *RedisCooldowns) Stamp(ctx context.Context, key string, cooldown time.Duration) error {
	if cooldown <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.prefix+key, time.Now().UnixMilli(), cooldown).Err(); err != nil {
		return fmt.Errorf("cooldown stamp: %w", err)
	}
	return nil
}
