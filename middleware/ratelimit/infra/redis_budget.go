package infra

import (
	"context"
	"log/slog"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisCostBudget implementa domain.Engine com orçamento de pontos por janela.
//
// É a janela fixa generalizada para incrementos variáveis. O par
// "ler e incrementar se couber" é um único script: ler, comparar e gravar em
// chamadas separadas seria um check-then-act clássico — duas requests
// concorrentes leriam o mesmo valor pré-incremento e ambas passariam do
// orçamento verdadeiro.
type RedisCostBudget struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisCostBudget(rdb *redis.Client, logger *slog.Logger) *RedisCostBudget {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCostBudget{rdb: rdb, logger: logger}
}

func (e *RedisCostBudget) Check(ctx context.Context, p domain.Policy, key domain.Key, cost int64) (domain.Decision, error) {
	if cost <= 0 {
		cost = 1
	}
	args := []interface{}{cost, p.Limit, p.Window.Milliseconds()}

	res, err := costBudgetScript.Run(ctx, e.rdb, []string{string(key)}, args...).Int64Slice()
	if err != nil && isMalformedState(err) {
		e.logger.Warn("malformed budget record, reinitializing",
			slog.String("policy", p.Name),
			slog.String("key", string(key)))
		if delErr := e.rdb.Del(ctx, string(key)).Err(); delErr != nil {
			return domain.Decision{Limit: p.Limit}, storeErr(delErr)
		}
		res, err = costBudgetScript.Run(ctx, e.rdb, []string{string(key)}, args...).Int64Slice()
	}
	if err != nil {
		if isMalformedState(err) {
			return domain.Decision{Limit: p.Limit}, malformedErr(err)
		}
		return domain.Decision{Limit: p.Limit}, storeErr(err)
	}
	if len(res) != 3 {
		return domain.Decision{Limit: p.Limit}, storeErr(errBadScriptReply)
	}

	allowed, used, pttl := res[0] == 1, res[1], res[2]
	remaining := p.Limit - used
	if remaining < 0 {
		remaining = 0
	}
	dec := domain.Decision{
		Allowed:   allowed,
		Limit:     p.Limit,
		Remaining: remaining,
	}
	if pttl > 0 {
		dec.ResetAt = time.Now().Add(time.Duration(pttl) * time.Millisecond)
		if !allowed {
			dec.RetryAfter = time.Duration(pttl) * time.Millisecond
		}
	} else if !allowed {
		// custo maior que o orçamento inteiro: nem esperar a janela ajuda,
		// mas a dica precisa existir
		dec.RetryAfter = p.Window
	}
	return dec, nil
}
