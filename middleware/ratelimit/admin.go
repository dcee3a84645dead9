package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"admission-gateway/middleware/ratelimit/domain"
)

// AdminHandler expõe o surface operacional de diagnóstico:
//
//	GET    ?policy=<nome>&limit=<n>  contagem de chaves + amostra {key, ttl, value}
//	DELETE ?key=<chave completa>     zera o registro de uma chave (desbloqueio)
//
// É somente-leitura exceto pelo reset; monte-o em um listener/path protegido,
// nunca na borda pública.
type AdminHandler struct {
	Inspector domain.Inspector

	// SampleLimit limita a amostra do GET. Default 20.
	SampleLimit int
}

type adminKeySample struct {
	Key        string  `json:"key"`
	TTLSeconds float64 `json:"ttlSeconds"`
	Value      string  `json:"value"`
}

type adminSnapshot struct {
	Policy string           `json:"policy"`
	Keys   int              `json:"keys"`
	Sample []adminKeySample `json:"sample"`
}

type adminError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.snapshot(w, r)
	case http.MethodDelete:
		h.reset(w, r)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		writeAdminError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *AdminHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	policy := r.URL.Query().Get("policy")
	if policy == "" {
		writeAdminError(w, http.StatusBadRequest, "missing policy parameter")
		return
	}

	limit := h.SampleLimit
	if limit <= 0 {
		limit = 20
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	snap, err := h.Inspector.Snapshot(r.Context(), policy, limit)
	if err != nil {
		writeAdminError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	out := adminSnapshot{Policy: snap.Policy, Keys: snap.Keys, Sample: []adminKeySample{}}
	for _, s := range snap.Sample {
		out.Sample = append(out.Sample, adminKeySample{
			Key:        s.Key,
			TTLSeconds: s.TTL.Seconds(),
			Value:      s.Value,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *AdminHandler) reset(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeAdminError(w, http.StatusBadRequest, "missing key parameter")
		return
	}

	if err := h.Inspector.Reset(r.Context(), key); err != nil {
		writeAdminError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAdminError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(adminError{Success: false, Error: msg})
}
