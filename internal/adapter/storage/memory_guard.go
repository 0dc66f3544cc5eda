package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGuard is the single-process submission guard used when no Redis
// address is configured.
type MemoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]guardEntry
}

type guardEntry struct {
	token   string
	expires time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]guardEntry),
	}
}

func (g *MemoryGuard) Acquire(ctx context.Context, key string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, ok := g.entries[key]; ok && now.Before(e.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	g.entries[key] = guardEntry{token: token, expires: now.Add(g.ttl)}
	return token, true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[key]; ok && e.token == token {
		delete(g.entries, key)
	}
	return nil
}
