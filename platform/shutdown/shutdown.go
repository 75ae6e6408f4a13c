// Package shutdown coordinates graceful termination: running plans get a
// chance to observe their interruption flags and clean up before the
// process exits. A global shutdown flag can be checked by long-running
// loops; the "SHUTDOWN" environment variable is set for any external
// processes that watch it.
package shutdown

import (
	"os"
	"sync"
)

// Global shutdown flag
var (
	isShutdown bool
	mu         sync.RWMutex
)

// CheckShutdown checks if we are in a shutdown state
func CheckShutdown() bool {
	mu.RLock()
	defer mu.RUnlock()
	return isShutdown
}

// setShutdown sets the shutdown flag
func setShutdown() {
	mu.Lock()
	isShutdown = true
	mu.Unlock()
	_ = os.Setenv("SHUTDOWN", "true")
}
