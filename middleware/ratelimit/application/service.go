package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação da admissão.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// A regra de indisponibilidade é única: se o engine falhar (store fora do ar,
// timeout, contenção de lock), a request PASSA — disponibilidade do produto
// vale mais que a precisão de uma cota. Cada fail-open gera um log de modo
// degradado com política e chave (nunca credenciais).
type Service struct {
	Registry *domain.Registry
	Engines  map[domain.Algorithm]domain.Engine
	Metrics  domain.MetricsHook
	Logger   *slog.Logger

	// CallTimeout limita cada chamada ao store; timeout é tratado igual a
	// store inalcançável. Se 0, usa 150ms.
	CallTimeout time.Duration
}

// Decide resolve a política pelo nome, deriva a chave e delega ao engine.
func (s Service) Decide(ctx context.Context, policyName, identity string, cost int64) domain.Decision {
	logger := s.logger()

	p, ok := s.Registry.Get(policyName)
	if !ok {
		// política desconhecida não pode derrubar request; o registry é
		// validado na inicialização, então isso é erro de wiring.
		logger.Warn("unknown rate limit policy, allowing",
			slog.String("policy", policyName))
		return domain.Decision{Allowed: true}
	}

	engine := s.Engines[p.Algorithm]
	if engine == nil {
		logger.Warn("no engine for algorithm, allowing",
			slog.String("policy", p.Name),
			slog.String("algorithm", string(p.Algorithm)))
		return domain.Decision{Allowed: true}
	}

	if cost <= 0 {
		cost = 1
	}
	key := p.Key(identity)

	timeout := s.CallTimeout
	if timeout <= 0 {
		timeout = 150 * time.Millisecond
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dec, err := engine.Check(checkCtx, p, key, cost)
	if err != nil {
		logger.Warn("rate limit degraded, failing open",
			slog.String("policy", p.Name),
			slog.String("key", string(key)),
			slog.Bool("lock_contention", errors.Is(err, domain.ErrLockContention)),
			slog.Any("err", err))
		if s.Metrics != nil {
			s.Metrics.Degraded(p.Name)
		}
		return domain.Decision{Allowed: true, Limit: dec.Limit}
	}

	if s.Metrics != nil {
		s.Metrics.Observe(p.Name, dec.Allowed)
	}
	return dec
}

func (s Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
