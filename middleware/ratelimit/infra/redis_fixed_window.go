package infra

import (
	"context"
	"log/slog"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow implementa domain.Engine com contador de janela fixa.
//
// O incremento e o (re)arme do TTL acontecem em um único script, então duas
// instâncias incrementando a mesma chave nunca observam passos intermediários
// uma da outra. O registro morre sozinho quando o TTL expira; a próxima
// request recria a janela.
type RedisFixedWindow struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisFixedWindow(rdb *redis.Client, logger *slog.Logger) *RedisFixedWindow {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFixedWindow{rdb: rdb, logger: logger}
}

func (e *RedisFixedWindow) Check(ctx context.Context, p domain.Policy, key domain.Key, _ int64) (domain.Decision, error) {
	res, err := e.eval(ctx, p, key)
	if err != nil {
		return domain.Decision{Limit: p.Limit}, err
	}

	count, pttl := res[0], res[1]
	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	dec := domain.Decision{
		Allowed:   count <= p.Limit,
		Limit:     p.Limit,
		Remaining: remaining,
	}
	if pttl > 0 {
		dec.ResetAt = time.Now().Add(time.Duration(pttl) * time.Millisecond)
		if !dec.Allowed {
			dec.RetryAfter = time.Duration(pttl) * time.Millisecond
		}
	}
	return dec, nil
}

func (e *RedisFixedWindow) eval(ctx context.Context, p domain.Policy, key domain.Key) ([]int64, error) {
	res, err := fixedWindowScript.Run(ctx, e.rdb, []string{string(key)}, p.Window.Milliseconds()).Int64Slice()
	if err != nil && isMalformedState(err) {
		// registro corrompido: reinicializa como ausente e tenta uma vez
		e.logger.Warn("malformed fixed window record, reinitializing",
			slog.String("policy", p.Name),
			slog.String("key", string(key)))
		if delErr := e.rdb.Del(ctx, string(key)).Err(); delErr != nil {
			return nil, storeErr(delErr)
		}
		res, err = fixedWindowScript.Run(ctx, e.rdb, []string{string(key)}, p.Window.Milliseconds()).Int64Slice()
	}
	if err != nil {
		if isMalformedState(err) {
			return nil, malformedErr(err)
		}
		return nil, storeErr(err)
	}
	if len(res) != 2 {
		return nil, storeErr(errBadScriptReply)
	}
	return res, nil
}
