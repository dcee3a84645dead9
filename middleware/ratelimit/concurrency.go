package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
)

type ConcurrencyOptions struct {
	Pool domain.LeasePool

	// Policy dá o namespace das chaves de lease e aparece na rejeição.
	Policy string
	Max    int

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	Logger *slog.Logger

	// AcquireTimeout limita a espera por lease (0 = não espera além do ctx).
	AcquireTimeout time.Duration

	// RetryAfter é a dica devolvida na rejeição. Default 1s.
	RetryAfter time.Duration
}

// ConcurrencyMiddleware limita requests simultâneas em voo por caller.
//
// O lease é adquirido antes do handler embrulhado começar e devolvido pelo
// defer em TODO caminho de término — retorno normal, panic ou abort do
// cliente. A liberação é idempotente, então caminhos de erro e de sucesso
// podem ambos tentar a limpeza sem encolher o orçamento de ninguém.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 || opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 1 * time.Second
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		Logger:         opts.Logger,
		AcquireTimeout: opts.AcquireTimeout,
	}
	policy := domain.Policy{Name: opts.Policy}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := policy.Key(opts.KeyFn(r))

			release, ok := svc.Acquire(r.Context(), key, opts.Max)
			if !ok {
				msg := fmt.Sprintf("too many concurrent requests for policy %q, retry in %ds",
					opts.Policy, retrySeconds(opts.RetryAfter))
				writeReject(w, msg, opts.RetryAfter)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
