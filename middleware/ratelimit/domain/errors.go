package domain

import "errors"

// Taxonomia de erros dos engines.
//
// Nenhum deles vira 5xx para o cliente: StoreUnavailable e LockContention
// resultam em fail-open na camada de application; MalformedState é
// recuperado pelo próprio engine reinicializando o registro (e logado).
var (
	// ErrStoreUnavailable indica que o store compartilhado não respondeu
	// (inalcançável ou timeout — os dois são tratados igual).
	ErrStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrMalformedState indica registro estruturalmente inválido no store.
	ErrMalformedState = errors.New("rate limit record malformed")

	// ErrLockContention indica que o lock distribuído não foi adquirido
	// dentro do orçamento de tentativas.
	ErrLockContention = errors.New("rate limit lock contention")
)
