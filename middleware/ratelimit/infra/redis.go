package infra

// Pedaços comuns aos engines Redis: scripts embarcados e classificação de
// erros do store.

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

//go:embed fixedwindow.lua
var fixedWindowLua string

//go:embed tokenbucket.lua
var tokenBucketLua string

//go:embed costbudget.lua
var costBudgetLua string

//go:embed unlock.lua
var unlockLua string

var (
	fixedWindowScript = redis.NewScript(fixedWindowLua)
	tokenBucketScript = redis.NewScript(tokenBucketLua)
	costBudgetScript  = redis.NewScript(costBudgetLua)
	unlockScript      = redis.NewScript(unlockLua)
)

// errBadScriptReply cobre respostas de script fora do formato esperado
// (versão divergente do script carregada no servidor, por exemplo).
var errBadScriptReply = errors.New("unexpected script reply shape")

// storeErr embrulha um erro de I/O do store na taxonomia do domínio.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// malformedErr embrulha estado inválido que sobreviveu à reinicialização
// (outra instância recriando o registro corrompido no meio, por exemplo).
func malformedErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrMalformedState, err)
}

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// isMalformedState detecta registro de tipo/conteúdo inválido no Redis
// (ex: alguém gravou uma string onde o engine espera um contador).
func isMalformedState(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "WRONGTYPE") ||
		strings.Contains(msg, "not an integer") ||
		strings.Contains(msg, "not a valid float")
}
