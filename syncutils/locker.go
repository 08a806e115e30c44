package syncutils

import "sync"

// Locker is the lock handed out by the instance lock table. Both the plain Mutex and the DetectingMutex satisfy it,
// so callers never need to know which variant the table was configured with.
type Locker interface {
	sync.Locker
}

var (
	_ Locker = &Mutex{}
	_ Locker = &DetectingMutex{}
)
