package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// rejectBody é o contrato de rejeição: sempre 429, sempre com dica de retry.
type rejectBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int64  `json:"retryAfter"`
}

func retrySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func writeReject(w http.ResponseWriter, msg string, retryAfter time.Duration) {
	secs := retrySeconds(retryAfter)
	w.Header().Set("Retry-After", formatInt64(secs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(rejectBody{
		Success:    false,
		Error:      msg,
		RetryAfter: secs,
	})
}

func rejectMessage(policy string, retryAfter time.Duration) string {
	return fmt.Sprintf("rate limit exceeded for policy %q, retry in %ds",
		policy, retrySeconds(retryAfter))
}
