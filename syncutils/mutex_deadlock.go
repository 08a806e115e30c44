//go:build deadlock
// +build deadlock

package syncutils

import (
	"github.com/sasha-s/go-deadlock"
)

// Mutex is go-deadlock's mutex in builds with the "deadlock" tag. Its options are set by ConfigureDeadlockDetection.
type Mutex struct {
	deadlock.Mutex
}

