package http

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining. /health reports
// shutting-down while the flag is set.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether SetShuttingDown(true) was called.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
