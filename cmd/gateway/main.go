package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	registry, err := domain.NewRegistry(cfg.policies...)
	if err != nil {
		log.Fatalf("policy error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", slog.Any("err", err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		engines   map[domain.Algorithm]domain.Engine
		pool      domain.LeasePool
		inspector domain.Inspector
		stats     domain.StatsStore
	)

	if cfg.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			log.Fatalf("redis ping error: %v", err)
		}

		lock := infra.NewRedisLock(rdb)
		engines = map[domain.Algorithm]domain.Engine{
			domain.FixedWindow:       infra.NewRedisFixedWindow(rdb, logger),
			domain.FixedWindowLocked: infra.NewLockedFixedWindow(rdb, lock),
			domain.TokenBucket:       infra.NewRedisTokenBucket(rdb, logger),
			domain.SlidingWindow:     infra.NewRedisSlidingWindow(rdb),
			domain.CostBudget:        infra.NewRedisCostBudget(rdb, logger),
		}
		pool = infra.NewRedisLeasePool(rdb, infra.WithLeaseCeiling(cfg.leaseCeiling))
		inspector = infra.NewRedisInspector(rdb)

		if cfg.statsEnabled {
			stats = infra.NewRedisStatsStore(rdb,
				infra.WithStatsPrefix(cfg.statsPrefix),
				infra.WithStatsTTL(cfg.statsTTL),
				infra.WithStatsBucket(cfg.statsBucket),
				infra.WithStatsTrackKeys(cfg.statsTrackKeys),
			)
		}
	} else {
		// sem Redis: estado local ao processo. Só vale para instância
		// única — múltiplas instâncias não compartilham orçamento assim.
		logger.Warn("REDIS_ADDR empty, using in-process engines (single instance only)")
		mem := infra.NewMemoryStore()
		mem.StartJanitor(ctx)
		engines = map[domain.Algorithm]domain.Engine{
			domain.FixedWindow:       mem,
			domain.FixedWindowLocked: mem,
			domain.TokenBucket:       mem,
			domain.SlidingWindow:     mem,
			domain.CostBudget:        mem,
		}
		pool = infra.NewChanLeasePool()
	}

	metrics := infra.NewPromMetrics(prometheus.DefaultRegisterer)

	// um middleware por política; a rota escolhe por prefixo mais longo
	chains := make(map[string]http.Handler, len(cfg.routes)+1)
	buildChain := func(policyName string) http.Handler {
		// MaxConcurrent da política sobrepõe o teto global de leases
		maxConcurrent := cfg.concurrencyMax
		if p, ok := registry.Get(policyName); ok && p.MaxConcurrent > 0 {
			maxConcurrent = p.MaxConcurrent
		}

		h := http.Handler(proxy)
		h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Pool: pool,
			// namespace próprio por política: tetos diferentes não podem
			// disputar o mesmo conjunto de leases
			Policy:             "inflight:" + policyName,
			Max:                maxConcurrent,
			KeyHeader:          cfg.keyHeader,
			TrustXForwardedFor: cfg.trustXFF,
			Logger:             logger,
			AcquireTimeout:     cfg.concurrencyTimeout,
		})(h)
		h = ratelimit.Middleware(ratelimit.Options{
			Registry:           registry,
			Engines:            engines,
			Policy:             policyName,
			Stats:              stats,
			Metrics:            metrics,
			Logger:             logger,
			KeyHeader:          cfg.keyHeader,
			TrustXForwardedFor: cfg.trustXFF,
			Exempt:             cfg.exemptIPs,
			StoreTimeout:       cfg.storeTimeout,
		})(h)
		return h
	}
	for _, policyName := range registry.Names() {
		chains[policyName] = buildChain(policyName)
	}

	router := newPolicyRouter(cfg.routes, cfg.defaultPolicy, chains)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	if inspector != nil {
		adminMux.Handle("/ratelimit", &ratelimit.AdminHandler{Inspector: inspector})
	}
	adminSrv := &http.Server{
		Addr:              cfg.adminAddr,
		Handler:           adminMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = adminSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("admin listening", slog.String("addr", cfg.adminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server error", slog.Any("err", err))
		}
	}()

	logger.Info("gateway listening",
		slog.String("addr", cfg.listenAddr),
		slog.String("upstream", target.String()),
		slog.String("redis", cfg.redisAddr),
		slog.Any("policies", registry.Names()),
		slog.Int("concurrency_max", cfg.concurrencyMax),
		slog.Int("exempt_ips", len(cfg.exemptIPs)))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// policyRouter escolhe a cadeia de middleware pelo prefixo de path mais longo.
type policyRouter struct {
	prefixes []routeRule
	fallback http.Handler
}

type routeRule struct {
	prefix  string
	handler http.Handler
}

func newPolicyRouter(routes map[string]string, defaultPolicy string, chains map[string]http.Handler) *policyRouter {
	r := &policyRouter{fallback: chains[defaultPolicy]}
	for prefix, policyName := range routes {
		if h, ok := chains[policyName]; ok {
			r.prefixes = append(r.prefixes, routeRule{prefix: prefix, handler: h})
		}
	}
	sort.Slice(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})
	return r
}

func (r *policyRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	for _, rule := range r.prefixes {
		if strings.HasPrefix(req.URL.Path, rule.prefix) {
			rule.handler.ServeHTTP(w, req)
			return
		}
	}
	r.fallback.ServeHTTP(w, req)
}

type config struct {
	listenAddr  string
	adminAddr   string
	upstreamURL string

	redisAddr     string
	redisPassword string
	redisDB       int

	policies      []domain.Policy
	routes        map[string]string
	defaultPolicy string
	exemptIPs     []string

	keyHeader string
	trustXFF  bool

	storeTimeout       time.Duration
	concurrencyMax     int
	concurrencyTimeout time.Duration
	leaseCeiling       time.Duration

	statsEnabled   bool
	statsPrefix    string
	statsTTL       time.Duration
	statsBucket    string
	statsTrackKeys bool
}

// defaultPolicies é a tabela de fábrica; cada entrada pode ser sobrescrita
// por RATE_POLICY_<NOME>=algoritmo,limite,janela[,capacidade,recarga/s].
func defaultPolicies() []domain.Policy {
	return []domain.Policy{
		{Name: "global", Algorithm: domain.TokenBucket, Capacity: 60, RefillPerSecond: 10},
		{Name: "auth", Algorithm: domain.FixedWindow, Limit: 5, Window: time.Minute},
		{Name: "search", Algorithm: domain.SlidingWindow, Limit: 30, Window: 10 * time.Second},
		{Name: "upload", Algorithm: domain.FixedWindow, Limit: 20, Window: 10 * time.Minute, MaxConcurrent: 3},
		{Name: "bulk", Algorithm: domain.CostBudget, Limit: 100, Window: time.Minute},
		{Name: "export", Algorithm: domain.CostBudget, Limit: 50, Window: time.Hour},
		{Name: "webhook", Algorithm: domain.FixedWindow, Limit: 100, Window: time.Minute},
	}
}

func defaultRoutes() map[string]string {
	return map[string]string{
		"/auth":    "auth",
		"/search":  "search",
		"/upload":  "upload",
		"/bulk":    "bulk",
		"/export":  "export",
		"/webhook": "webhook",
	}
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.adminAddr = getenvDefault("ADMIN_ADDR", ":9090")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)

	cfg.keyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.storeTimeout = getenvDurationDefault("STORE_TIMEOUT", 150*time.Millisecond)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)
	cfg.leaseCeiling = getenvDurationDefault("LEASE_CEILING", 5*time.Minute)

	if v := os.Getenv("RATE_EXEMPT_IPS"); v != "" {
		for _, ip := range strings.Split(v, ",") {
			if ip = strings.TrimSpace(ip); ip != "" {
				cfg.exemptIPs = append(cfg.exemptIPs, ip)
			}
		}
	}

	cfg.defaultPolicy = getenvDefault("DEFAULT_POLICY", "global")
	cfg.routes = defaultRoutes()
	if v := os.Getenv("ROUTE_POLICIES"); v != "" {
		cfg.routes = map[string]string{}
		for _, pair := range strings.Split(v, ",") {
			prefix, policyName, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || prefix == "" || policyName == "" {
				return config{}, fmt.Errorf("invalid ROUTE_POLICIES entry %q", pair)
			}
			cfg.routes[prefix] = policyName
		}
	}

	for _, p := range defaultPolicies() {
		override, err := policyOverride(p)
		if err != nil {
			return config{}, err
		}
		cfg.policies = append(cfg.policies, override)
	}

	cfg.statsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.statsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.statsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.statsEnabled && cfg.redisAddr == "" {
		return config{}, errors.New("REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

// policyOverride aplica RATE_POLICY_<NOME> por cima do default.
// Formato: algoritmo,limite,janela[,capacidade,recarga/s]
// Ex.: RATE_POLICY_AUTH=fixed_window,10,30s
//
//	RATE_POLICY_GLOBAL=token_bucket,0,0,100,25
func policyOverride(p domain.Policy) (domain.Policy, error) {
	v := os.Getenv("RATE_POLICY_" + strings.ToUpper(p.Name))
	if v == "" {
		return p, nil
	}

	parts := strings.Split(v, ",")
	if len(parts) < 3 {
		return p, fmt.Errorf("policy %q: want algorithm,limit,window[,capacity,refill], got %q", p.Name, v)
	}

	p.Algorithm = domain.Algorithm(strings.TrimSpace(parts[0]))

	limit, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return p, fmt.Errorf("policy %q: bad limit: %v", p.Name, err)
	}
	p.Limit = limit

	window, err := time.ParseDuration(strings.TrimSpace(parts[2]))
	if err != nil && strings.TrimSpace(parts[2]) != "0" {
		return p, fmt.Errorf("policy %q: bad window: %v", p.Name, err)
	}
	p.Window = window

	if len(parts) >= 5 {
		capacity, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
		if err != nil {
			return p, fmt.Errorf("policy %q: bad capacity: %v", p.Name, err)
		}
		refill, err := strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
		if err != nil {
			return p, fmt.Errorf("policy %q: bad refill: %v", p.Name, err)
		}
		p.Capacity = capacity
		p.RefillPerSecond = refill
	}
	return p, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
