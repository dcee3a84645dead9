package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLeasePool implementa domain.LeasePool com um set de lease ids por
// chave, compartilhado entre todas as instâncias do serviço.
//
// Cada Acquire insere um id novo e confere a cardinalidade na mesma
// transação; se estourou o máximo, o próprio id recém-inserido é removido e
// a request rejeita. O set carrega um TTL-teto rearmada a cada acesso: se um
// holder morrer sem liberar, o lease vaza no máximo até o teto expirar.
type RedisLeasePool struct {
	rdb *redis.Client

	// ceiling é a duração máxima generosa de uma request; limita o estrago
	// de leases vazados por crash.
	ceiling time.Duration

	// releaseTimeout limita a chamada de liberação, que roda fora do ctx da
	// request (uma request cancelada ainda precisa devolver o lease).
	releaseTimeout time.Duration
}

type LeasePoolOption func(*RedisLeasePool)

func WithLeaseCeiling(d time.Duration) LeasePoolOption {
	return func(p *RedisLeasePool) { p.ceiling = d }
}

func WithReleaseTimeout(d time.Duration) LeasePoolOption {
	return func(p *RedisLeasePool) { p.releaseTimeout = d }
}

func NewRedisLeasePool(rdb *redis.Client, opts ...LeasePoolOption) *RedisLeasePool {
	p := &RedisLeasePool{
		rdb:            rdb,
		ceiling:        5 * time.Minute,
		releaseTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire implementa domain.LeasePool.
func (p *RedisLeasePool) Acquire(ctx context.Context, key domain.Key, max int) (func(), bool, error) {
	id := uuid.NewString()

	pipe := p.rdb.TxPipeline()
	pipe.SAdd(ctx, string(key), id)
	card := pipe.SCard(ctx, string(key))
	pipe.PExpire(ctx, string(key), p.ceiling)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, storeErr(err)
	}

	if card.Val() > int64(max) {
		// estourou: remove o próprio lease e rejeita. Remoção best-effort;
		// se falhar, o TTL-teto recolhe.
		p.remove(key, id)
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		// idempotente: caminho de erro e de sucesso podem ambos chamar
		once.Do(func() { p.remove(key, id) })
	}
	return release, true, nil
}

// remove roda com contexto próprio: o ctx da request pode já estar cancelado
// e um lease não devolvido encolheria o orçamento do caller para sempre.
func (p *RedisLeasePool) remove(key domain.Key, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.releaseTimeout)
	defer cancel()
	_ = p.rdb.SRem(ctx, string(key), id).Err()
}
