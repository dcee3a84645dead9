package infra

import (
	"context"
	"log/slog"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisTokenBucket implementa domain.Engine com bucket de tokens.
//
// O estado do bucket precisa sobreviver entre janelas, então por padrão ele
// não expira; um TTL ocioso opcional permite recolher buckets abandonados
// (ao expirar, o próximo uso recria o bucket cheio — semanticamente igual a
// um bucket que recarregou até a capacidade).
type RedisTokenBucket struct {
	rdb     *redis.Client
	logger  *slog.Logger
	idleTTL time.Duration
}

type TokenBucketOption func(*RedisTokenBucket)

// WithBucketIdleTTL define o TTL ocioso dos buckets (0 = sem expiração).
func WithBucketIdleTTL(d time.Duration) TokenBucketOption {
	return func(e *RedisTokenBucket) { e.idleTTL = d }
}

func NewRedisTokenBucket(rdb *redis.Client, logger *slog.Logger, opts ...TokenBucketOption) *RedisTokenBucket {
	if logger == nil {
		logger = slog.Default()
	}
	e := &RedisTokenBucket{rdb: rdb, logger: logger, idleTTL: 24 * time.Hour}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RedisTokenBucket) Check(ctx context.Context, p domain.Policy, key domain.Key, _ int64) (domain.Decision, error) {
	args := []interface{}{p.Capacity, p.RefillPerSecond, e.idleTTL.Milliseconds()}

	res, err := tokenBucketScript.Run(ctx, e.rdb, []string{string(key)}, args...).Int64Slice()
	if err != nil && isMalformedState(err) {
		e.logger.Warn("malformed token bucket record, reinitializing",
			slog.String("policy", p.Name),
			slog.String("key", string(key)))
		if delErr := e.rdb.Del(ctx, string(key)).Err(); delErr != nil {
			return domain.Decision{Limit: p.Capacity}, storeErr(delErr)
		}
		res, err = tokenBucketScript.Run(ctx, e.rdb, []string{string(key)}, args...).Int64Slice()
	}
	if err != nil {
		if isMalformedState(err) {
			return domain.Decision{Limit: p.Capacity}, malformedErr(err)
		}
		return domain.Decision{Limit: p.Capacity}, storeErr(err)
	}
	if len(res) != 3 {
		return domain.Decision{Limit: p.Capacity}, storeErr(errBadScriptReply)
	}

	allowed, remaining, retryMs := res[0] == 1, res[1], res[2]
	dec := domain.Decision{
		Allowed:   allowed,
		Limit:     p.Capacity,
		Remaining: remaining,
	}
	if !allowed && retryMs > 0 {
		dec.RetryAfter = time.Duration(retryMs) * time.Millisecond
		dec.ResetAt = time.Now().Add(dec.RetryAfter)
	}
	return dec, nil
}
