// -----------------------------------------------------------------------
// Safe Goroutine - detached, panic-protected background tasks
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

var (
	goroutineCounter int64
	activeGoroutines int64
)

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// GetActiveGoroutineCount returns the number of SafeGo goroutines still running
func GetActiveGoroutineCount() int64 {
	return atomic.LoadInt64(&activeGoroutines)
}

// SafeGo runs fn in a detached goroutine. Nobody waits for it; a panic is
// recovered and logged with its stack instead of crashing the process.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)
	atomic.AddInt64(&activeGoroutines, 1)

	go func() {
		defer atomic.AddInt64(&activeGoroutines, -1)
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)

				if logger == nil {
					fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, buf[:n])
					return
				}
				logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(buf[:n])).
					Msg("Recovered from panic in goroutine")
			}
		}()

		fn()
	}()
}
