//go:build !deadlock
// +build !deadlock

package syncutils

import (
	"sync"
)

// Mutex is the plain instance lock handed out by a lock table without deadlock detection.
// Building with the "deadlock" tag swaps it for go-deadlock's mutex, so that every instance lock gets lock order
// diagnostics without switching the table to DetectingMutex.
type Mutex struct {
	mutex sync.Mutex
}

// Lock acquires the mutex.
func (m *Mutex) Lock() {
	m.mutex.Lock()
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() {
	m.mutex.Unlock()
}

