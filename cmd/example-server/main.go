package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy),
	// com engines em memória — sem Redis, vale só para instância única.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	registry, err := domain.NewRegistry(domain.Policy{
		Name:            "global",
		Algorithm:       domain.TokenBucket,
		Capacity:        10,
		RefillPerSecond: 5,
	})
	if err != nil {
		log.Fatalf("policy error: %v", err)
	}

	store := infra.NewMemoryStore()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Pool:   infra.NewChanLeasePool(),
		Policy: "concurrency",
		Max:    50,
		Logger: logger,
	})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Registry: registry,
		Engines: map[domain.Algorithm]domain.Engine{
			domain.TokenBucket: store,
		},
		Policy:             "global",
		Logger:             logger,
		KeyHeader:          "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
