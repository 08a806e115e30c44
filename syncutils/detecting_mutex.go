package syncutils

import (
	"sync"
	"time"

	"github.com/petermattis/goid"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/atomic"
)

var configureDeadlockOnce sync.Once

// ConfigureDeadlockDetection sets the process wide options of go-deadlock that back every DetectingMutex.
// A zero timeout disables the "lock held for too long" check. onPotentialDeadlock replaces go-deadlock's default
// behavior of exiting the process. Only the first call has an effect.
func ConfigureDeadlockDetection(timeout time.Duration, onPotentialDeadlock func()) {
	configureDeadlockOnce.Do(func() {
		deadlock.Opts.DeadlockTimeout = timeout
		if onPotentialDeadlock != nil {
			deadlock.Opts.OnPotentialDeadlock = onPotentialDeadlock
		}
	})
}

// DetectingMutex is a diagnostic lock. Before blocking it records a wait edge in its WaitGraph, so that a goroutine
// closing a cycle gets reported immediately. It additionally delegates to go-deadlock, which reports lock order
// inversions and locks held for longer than the configured timeout.
type DetectingMutex struct {
	name  string
	graph *WaitGraph
	owner atomic.Int64
	mutex deadlock.Mutex
}

// NewDetectingMutex creates a DetectingMutex that is named in reports and tracked by the given graph.
func NewDetectingMutex(name string, graph *WaitGraph) *DetectingMutex {
	return &DetectingMutex{
		name:  name,
		graph: graph,
	}
}

// Lock acquires the mutex.
func (m *DetectingMutex) Lock() {
	id := goid.Get()

	if holder := m.owner.Load(); holder != 0 && m.graph != nil {
		m.graph.Wait(id, holder, m.name)
		defer m.graph.Acquired(id)
	}

	m.mutex.Lock()
	m.owner.Store(id)
}

// Unlock releases the mutex.
func (m *DetectingMutex) Unlock() {
	m.owner.Store(0)
	m.mutex.Unlock()
}

// Name returns the name the mutex is reported with.
func (m *DetectingMutex) Name() string {
	return m.name
}
