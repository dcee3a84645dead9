package ginadapter

import (
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"

	"github.com/gin-gonic/gin"
)

// Middleware é o mesmo ponto de decisão do pacote ratelimit, exposto como
// gin.HandlerFunc para serviços que montam as rotas com gin em vez de
// net/http puro. As Options são as mesmas — um serviço pode usar os dois
// adapters sobre os mesmos engines/registry sem duplicar configuração.
func Middleware(opts ratelimit.Options) gin.HandlerFunc {
	if opts.KeyFn == nil {
		opts.KeyFn = ratelimit.DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.CostFn == nil {
		opts.CostFn = ratelimit.DefaultCosts()
	}

	exempt := make(map[string]struct{}, len(opts.Exempt))
	for _, addr := range opts.Exempt {
		exempt[addr] = struct{}{}
	}

	svc := application.Service{
		Registry:    opts.Registry,
		Engines:     opts.Engines,
		Metrics:     opts.Metrics,
		Logger:      opts.Logger,
		CallTimeout: opts.StoreTimeout,
	}

	return func(c *gin.Context) {
		if _, ok := exempt[ratelimit.OriginAddr(c.Request, opts.TrustXForwardedFor)]; ok {
			c.Next()
			return
		}

		identity := opts.KeyFn(c.Request)
		dec := svc.Decide(c.Request.Context(), opts.Policy, identity, opts.CostFn(c.Request))

		if dec.Limit > 0 {
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", dec.Limit))
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", dec.Remaining))
			if !dec.ResetAt.IsZero() {
				c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", dec.ResetAt.Unix()))
			}
		}

		if !dec.Allowed {
			secs := int64((dec.RetryAfter + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", secs))
			c.AbortWithStatusJSON(429, gin.H{
				"success":    false,
				"error":      fmt.Sprintf("rate limit exceeded for policy %q, retry in %ds", opts.Policy, secs),
				"retryAfter": secs,
			})
			return
		}

		c.Next()
	}
}
