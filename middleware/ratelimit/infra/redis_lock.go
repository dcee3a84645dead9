package infra

import (
	"context"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLock é um lock distribuído curto por chave (SET NX + TTL).
//
// Serve de seção crítica explícita para atualizações multi-passo que o store
// não expressa como uma primitiva atômica. Degrada para acesso serializado
// por chave — prefira sempre um script/incremento atômico quando existir.
//
// O marcador carrega um TTL-teto, então crash-sem-release se cura sozinho;
// e só o dono (token único) consegue removê-lo, via compare-and-delete.
type RedisLock struct {
	rdb        *redis.Client
	retries    int
	retryDelay time.Duration
}

type LockOption func(*RedisLock)

func WithLockRetries(n int) LockOption {
	return func(l *RedisLock) { l.retries = n }
}

func WithLockRetryDelay(d time.Duration) LockOption {
	return func(l *RedisLock) { l.retryDelay = d }
}

func NewRedisLock(rdb *redis.Client, opts ...LockOption) *RedisLock {
	l := &RedisLock{rdb: rdb, retries: 3, retryDelay: 20 * time.Millisecond}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithLock roda fn segurando o lock de `key`.
//
// Se o marcador já existe, espera e tenta de novo dentro do orçamento de
// tentativas; esgotado o orçamento, retorna domain.ErrLockContention (quem
// chama faz fail-open — nunca deadlock na admissão). O marcador é removido
// ao final mesmo se fn retornar erro ou o ctx da request já tiver encerrado.
func (l *RedisLock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	acquired := false
	for attempt := 0; attempt <= l.retries; attempt++ {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return storeErr(err)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrLockContention, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}
	if !acquired {
		return domain.ErrLockContention
	}

	defer l.unlock(key, token)
	return fn(ctx)
}

func (l *RedisLock) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = unlockScript.Run(ctx, l.rdb, []string{key}, token).Err()
}
