package infra

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// LockedFixedWindow é a variante da janela fixa guardada por lock distribuído.
//
// A forma canônica é RedisFixedWindow (incremento atômico via script); esta
// variante existe para stores sem incremento-com-TTL atômico e é opt-in por
// política (algoritmo "fixed_window_locked"). Dentro da seção crítica a
// leitura e a escrita são chamadas separadas — é o lock que as serializa.
type LockedFixedWindow struct {
	rdb  *redis.Client
	lock *RedisLock

	// lockTTL é o teto de vida do marcador; precisa cobrir com folga o
	// GET+SET/INCR da seção crítica, nada além disso.
	lockTTL time.Duration
}

func NewLockedFixedWindow(rdb *redis.Client, lock *RedisLock) *LockedFixedWindow {
	return &LockedFixedWindow{rdb: rdb, lock: lock, lockTTL: 2 * time.Second}
}

func (e *LockedFixedWindow) Check(ctx context.Context, p domain.Policy, key domain.Key, _ int64) (domain.Decision, error) {
	var dec domain.Decision

	err := e.lock.WithLock(ctx, string(key)+":lock", e.lockTTL, func(ctx context.Context) error {
		var count int64
		exists, err := e.rdb.Exists(ctx, string(key)).Result()
		if err != nil {
			return storeErr(err)
		}
		if exists == 0 {
			if err := e.rdb.Set(ctx, string(key), 1, p.Window).Err(); err != nil {
				return storeErr(err)
			}
			count = 1
		} else {
			count, err = e.rdb.Incr(ctx, string(key)).Result()
			if err != nil {
				return storeErr(err)
			}
			// mesma autocura da variante atômica: TTL < 0 = janela órfã
			if ttl, err := e.rdb.PTTL(ctx, string(key)).Result(); err == nil && ttl < 0 {
				_ = e.rdb.PExpire(ctx, string(key), p.Window).Err()
			}
		}

		remaining := p.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		dec = domain.Decision{
			Allowed:   count <= p.Limit,
			Limit:     p.Limit,
			Remaining: remaining,
		}
		if pttl, err := e.rdb.PTTL(ctx, string(key)).Result(); err == nil && pttl > 0 {
			dec.ResetAt = time.Now().Add(pttl)
			if !dec.Allowed {
				dec.RetryAfter = pttl
			}
		}
		return nil
	})
	if err != nil {
		return domain.Decision{Limit: p.Limit}, err
	}
	return dec, nil
}
