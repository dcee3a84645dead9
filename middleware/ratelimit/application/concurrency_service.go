package application

import (
	"context"
	"log/slog"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de leases com
// timeout, sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool   domain.LeasePool
	Logger *slog.Logger

	// AcquireTimeout limita a espera por um lease.
	// - Se <= 0, espera até o ctx encerrar.
	// - Se > 0, espera até o timeout.
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir um lease para `key` respeitando `max`.
//
// Retorna (release, ok). Se ok=false, nenhum lease foi adquirido.
// Se o pool falhar (store indisponível), a regra é a mesma da admissão:
// fail-open — retorna um release vazio e ok=true, logando o modo degradado.
// O release retornado é sempre seguro de chamar mais de uma vez.
func (s ConcurrencyService) Acquire(ctx context.Context, key domain.Key, max int) (func(), bool) {
	if s.Pool == nil || max <= 0 {
		return func() {}, true
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok, err := s.Pool.Acquire(acqCtx, key, max)
	if err != nil {
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("concurrency lease degraded, failing open",
			slog.String("key", string(key)),
			slog.Any("err", err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return release, true
}
