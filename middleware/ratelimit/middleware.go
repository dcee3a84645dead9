package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
)

// KeyFunc extrai a identidade que a request será cobrada: principal
// autenticado se houver, senão o endereço de origem.
type KeyFunc func(r *http.Request) string

// CostFunc classifica o custo de uma request (só usado por políticas de
// orçamento de pontos; as demais cobram custo unitário).
type CostFunc func(r *http.Request) int64

type principalCtxKey struct{}

// WithPrincipal marca no contexto o id do principal autenticado.
// Quem chama é o middleware de autenticação, que roda antes deste.
func WithPrincipal(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, id)
}

// PrincipalFromContext devolve o principal autenticado, ou "" se anônimo.
func PrincipalFromContext(ctx context.Context) string {
	id, _ := ctx.Value(principalCtxKey{}).(string)
	return id
}

type Options struct {
	// Registry + Engines + Policy definem quem decide.
	Registry *domain.Registry
	Engines  map[domain.Algorithm]domain.Engine
	Policy   string

	Stats   domain.StatsStore
	Metrics domain.MetricsHook
	Logger  *slog.Logger

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	CostFn             CostFunc

	// Exempt é a lista de endereços de origem que pulam a política inteira
	// (mantida pelo operador, lida uma vez na inicialização).
	Exempt []string

	// StoreTimeout limita cada ida ao store; estourou = store indisponível
	// = fail-open. Se 0, a camada de application usa o padrão dela.
	StoreTimeout time.Duration
}

// Middleware é o ponto de decisão: deriva a chave, delega ao engine da
// política e ou segue para o próximo handler (com headers informativos) ou
// encerra com 429 + dica de retry. Nenhum handler downstream roda numa
// rejeição — nenhum efeito colateral da operação embrulhada acontece.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.CostFn == nil {
		opts.CostFn = DefaultCosts()
	}

	exempt := make(map[string]struct{}, len(opts.Exempt))
	for _, addr := range opts.Exempt {
		if a := strings.TrimSpace(addr); a != "" {
			exempt[a] = struct{}{}
		}
	}

	svc := application.Service{
		Registry:    opts.Registry,
		Engines:     opts.Engines,
		Metrics:     opts.Metrics,
		Logger:      opts.Logger,
		CallTimeout: opts.StoreTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[OriginAddr(r, opts.TrustXForwardedFor)]; ok {
				next.ServeHTTP(w, r)
				return
			}

			identity := opts.KeyFn(r)
			dec := svc.Decide(r.Context(), opts.Policy, identity, opts.CostFn(r))

			if opts.Stats != nil {
				p, _ := opts.Registry.Get(opts.Policy)
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Policy:  opts.Policy,
					Key:     p.Key(identity),
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}

			if dec.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", formatInt64(dec.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt64(dec.Remaining))
				if !dec.ResetAt.IsZero() {
					w.Header().Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.Unix()))
				}
			}

			if !dec.Allowed {
				writeReject(w, rejectMessage(opts.Policy, dec.RetryAfter), dec.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DefaultKeyFunc cobra o principal autenticado quando existe; anônimos são
// cobrados pelo endereço de origem.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if id := PrincipalFromContext(r.Context()); id != "" {
			return id
		}

		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		return OriginAddr(r, trustXFF)
	}
}

// OriginAddr resolve o endereço de origem do caller. Também é o que a lista
// de isenção compara — isenção nunca olha principal, que é forjável por
// header em bordas mal configuradas.
func OriginAddr(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				if ip := strings.TrimSpace(parts[0]); ip != "" {
					return ip
				}
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
