package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// MemoryStore é um engine em memória baseado em token-bucket (x/time/rate)
// com cache por chave e limpeza periódica.
//
// Serve para desenvolvimento, testes e deploys de instância única: o estado
// vive no processo, então várias instâncias atrás de um load balancer NÃO
// compartilham orçamento — para isso existem os engines Redis.
//
// Para políticas que não são token bucket, a janela é aproximada como uma
// taxa média (limit/window) com rajada igual ao limite.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*storeEntry
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*MemoryStore)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *MemoryStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[domain.Key]*storeEntry),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Check implementa domain.Engine.
func (s *MemoryStore) Check(_ context.Context, p domain.Policy, key domain.Key, _ int64) (domain.Decision, error) {
	lim := s.get(key, p)
	limit := policyLimit(p)

	if lim.Allow() {
		remaining := int64(lim.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		return domain.Decision{Allowed: true, Limit: limit, Remaining: remaining}, nil
	}

	// Reserve dá a estimativa de espera do próprio limiter; cancelada em
	// seguida para não consumir o token da reserva.
	res := lim.Reserve()
	delay := res.Delay()
	res.Cancel()
	if delay <= 0 {
		delay = time.Second
	}
	return domain.Decision{
		Allowed:    false,
		Limit:      limit,
		RetryAfter: delay,
		ResetAt:    time.Now().Add(delay),
	}, nil
}

func (s *MemoryStore) get(key domain.Key, p domain.Policy) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(policyRate(p), int(policyLimit(p)))
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

func policyLimit(p domain.Policy) int64 {
	if p.Algorithm == domain.TokenBucket {
		return p.Capacity
	}
	return p.Limit
}

func policyRate(p domain.Policy) rate.Limit {
	if p.Algorithm == domain.TokenBucket {
		return rate.Limit(p.RefillPerSecond)
	}
	if p.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(p.Limit) / p.Window.Seconds())
}

func (s *MemoryStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo que o janitor precisa de um context.Context:
// qualquer valor com Done() serve para encerrá-lo.
type DoneContext interface {
	Done() <-chan struct{}
}
