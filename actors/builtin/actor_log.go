package builtin

import (
	"sync"

	rtt "github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"

	"github.com/tokenvest/vesting-actors/actors/runtime"
)

// Log levels keyed by actor code. Actors pass their preferred level as the fallback.
var logLevels = struct {
	mu     sync.RWMutex
	byCode map[cid.Cid]rtt.LogLevel
}{byCode: map[cid.Cid]rtt.LogLevel{}}

// SetActorsLogLevel overrides the level used by each of the given actors.
func SetActorsLogLevel(level rtt.LogLevel, actors ...runtime.VMActor) {
	logLevels.mu.Lock()
	defer logLevels.mu.Unlock()
	for _, a := range actors {
		logLevels.byCode[a.Code()] = level
	}
}

// ResetActorsLogLevel drops all overrides.
func ResetActorsLogLevel() {
	logLevels.mu.Lock()
	defer logLevels.mu.Unlock()
	logLevels.byCode = map[cid.Cid]rtt.LogLevel{}
}

func GetActorLogLevel(a runtime.VMActor, fallback rtt.LogLevel) rtt.LogLevel {
	logLevels.mu.RLock()
	defer logLevels.mu.RUnlock()
	if level, ok := logLevels.byCode[a.Code()]; ok {
		return level
	}
	return fallback
}
