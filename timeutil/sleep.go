package timeutil

import (
	"time"
)

// Sleep waits for the given interval and returns true, or returns false as soon as the shutdown signal is closed.
func Sleep(shutdownSignal <-chan struct{}, interval time.Duration) bool {
	if interval <= 0 {
		select {
		case <-shutdownSignal:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-shutdownSignal:
		return false

	case <-timer.C:
		return true
	}
}
