package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"
)

// ChanLeasePool é um domain.LeasePool em memória: um semáforo de channel por
// chave. Só vale para instância única — o par distribuído é RedisLeasePool.
type ChanLeasePool struct {
	mu   sync.Mutex
	sems map[domain.Key]chan struct{}
}

func NewChanLeasePool() *ChanLeasePool {
	return &ChanLeasePool{sems: make(map[domain.Key]chan struct{})}
}

// Acquire bloqueia até conseguir uma vaga para `key` ou até o ctx encerrar.
// A capacidade do semáforo é fixada no primeiro uso da chave.
func (p *ChanLeasePool) Acquire(ctx context.Context, key domain.Key, max int) (func(), bool, error) {
	sem := p.sem(key, max)

	select {
	case sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-sem }) }, true, nil
	case <-ctx.Done():
		return nil, false, nil
	}
}

func (p *ChanLeasePool) sem(key domain.Key, max int) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sem, ok := p.sems[key]; ok {
		return sem
	}
	sem := make(chan struct{}, max)
	p.sems[key] = sem
	return sem
}
