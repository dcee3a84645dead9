package infra

import (
	"context"
	"strconv"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSlidingWindow implementa domain.Engine com log ordenado de timestamps.
//
// Cada request aceita ou rejeitada entra no log; entradas mais velhas que a
// janela são podadas a cada acesso. A contagem pós-poda é exata — diferente
// da janela fixa, não há rajada de 2x na virada de janela. A entrada da
// própria request NÃO é retirada quando rejeita: a tentativa ainda custa,
// senão um caller rejeitado sondaria o limite de graça.
//
// O trio append/poda/contagem vai em MULTI/EXEC (TxPipeline), então comita
// como uma unidade e updates de outras instâncias não se intercalam no meio.
type RedisSlidingWindow struct {
	rdb *redis.Client
}

func NewRedisSlidingWindow(rdb *redis.Client) *RedisSlidingWindow {
	return &RedisSlidingWindow{rdb: rdb}
}

func (e *RedisSlidingWindow) Check(ctx context.Context, p domain.Policy, key domain.Key, _ int64) (domain.Decision, error) {
	now := time.Now()
	cutoff := now.Add(-p.Window).UnixNano()

	pipe := e.rdb.TxPipeline()
	pipe.ZAdd(ctx, string(key), redis.Z{
		Score: float64(now.UnixNano()),
		// member precisa ser único por request; duas requests no mesmo
		// nanossegundo não podem colapsar em uma entrada só
		Member: uuid.NewString(),
	})
	pipe.ZRemRangeByScore(ctx, string(key), "-inf", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, string(key))
	// rearma o TTL a cada acesso para que logs abandonados sejam recolhidos
	pipe.PExpire(ctx, string(key), p.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Decision{Limit: p.Limit}, storeErr(err)
	}

	count := card.Val()
	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	dec := domain.Decision{
		Allowed:   count <= p.Limit,
		Limit:     p.Limit,
		Remaining: remaining,
	}
	if !dec.Allowed {
		dec.RetryAfter = e.retryAfter(ctx, p, key, now)
		dec.ResetAt = now.Add(dec.RetryAfter)
	}
	return dec, nil
}

// retryAfter estima quando a entrada mais antiga sai da janela. Só roda no
// caminho de rejeição; em caso de erro devolve a janela inteira como dica
// conservadora (a rejeição em si já está decidida).
func (e *RedisSlidingWindow) retryAfter(ctx context.Context, p domain.Policy, key domain.Key, now time.Time) time.Duration {
	oldest, err := e.rdb.ZRangeWithScores(ctx, string(key), 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return p.Window
	}
	exitAt := time.Unix(0, int64(oldest[0].Score)).Add(p.Window)
	if d := exitAt.Sub(now); d > 0 {
		return d
	}
	return time.Second
}
