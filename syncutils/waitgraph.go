package syncutils

import (
	"fmt"
	"strings"
	"sync"
)

// WaitEdge is a single "goroutine Waiter waits for a lock owned by goroutine Holder" relation.
type WaitEdge struct {
	Waiter int64
	Holder int64
	Lock   string
}

// String returns a human-readable version of the edge.
func (e WaitEdge) String() string {
	return fmt.Sprintf("goroutine %d waits for %q held by goroutine %d", e.Waiter, e.Lock, e.Holder)
}

// Cycle is a closed chain of wait edges, i.e. a deadlock.
type Cycle []WaitEdge

// String returns a human-readable version of the cycle.
func (c Cycle) String() string {
	parts := make([]string, len(c))
	for i, edge := range c {
		parts[i] = edge.String()
	}

	return strings.Join(parts, " -> ")
}

// DeadlockHandler is called with every cycle detected in a WaitGraph. Cycles are only reported, never broken.
type DeadlockHandler func(cycle Cycle)

// WaitGraph tracks which goroutine waits for which lock owner.
// A goroutine can only block on one lock at a time, so every node has at most one outgoing edge and cycle detection
// is a walk along that single chain.
type WaitGraph struct {
	edges   map[int64]WaitEdge
	handler DeadlockHandler
	mutex   sync.Mutex
}

// NewWaitGraph creates a WaitGraph that reports detected cycles to the given handler.
func NewWaitGraph(handler DeadlockHandler) *WaitGraph {
	return &WaitGraph{
		edges:   make(map[int64]WaitEdge),
		handler: handler,
	}
}

// Wait records that waiter is about to block on lock held by holder and reports a cycle if that closes one.
func (g *WaitGraph) Wait(waiter, holder int64, lock string) {
	if waiter == holder {
		// re-entrant acquisition of a non-reentrant lock
		g.report(Cycle{{Waiter: waiter, Holder: holder, Lock: lock}})

		return
	}

	g.mutex.Lock()
	g.edges[waiter] = WaitEdge{Waiter: waiter, Holder: holder, Lock: lock}
	cycle := g.cycleFrom(waiter)
	g.mutex.Unlock()

	if cycle != nil {
		g.report(cycle)
	}
}

// Acquired removes the wait edge of the goroutine once it got the lock.
func (g *WaitGraph) Acquired(waiter int64) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	delete(g.edges, waiter)
}

// Size returns the number of goroutines currently blocked on a tracked lock.
func (g *WaitGraph) Size() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return len(g.edges)
}

// cycleFrom follows the chain starting at start and returns the edges if it leads back to start.
func (g *WaitGraph) cycleFrom(start int64) Cycle {
	var cycle Cycle

	current := start
	for i := 0; i <= len(g.edges); i++ {
		edge, waiting := g.edges[current]
		if !waiting {
			return nil
		}

		cycle = append(cycle, edge)
		if edge.Holder == start {
			return cycle
		}

		current = edge.Holder
	}

	// chain loops without passing start again, that cycle was already reported when it closed
	return nil
}

func (g *WaitGraph) report(cycle Cycle) {
	if g.handler != nil {
		g.handler(cycle)
	}
}
