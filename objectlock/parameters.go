package objectlock

import "time"

// Parameters contains the configuration parameters of the instance lock table.
type Parameters struct {
	// DeadlockDetection enables the diagnostic lock variant.
	DeadlockDetection bool `default:"false" usage:"use deadlock detecting instance locks (debugging only)"`
	// DeadlockTimeout is the time a detecting lock may be held before it gets reported.
	DeadlockTimeout time.Duration `default:"30s" usage:"the time a detecting lock may be held before it gets reported (0 disables)"`
}

// ToOptions converts the parameters into table options.
func (p *Parameters) ToOptions() []Option {
	return []Option{
		WithDeadlockDetection(p.DeadlockDetection),
		WithDeadlockTimeout(p.DeadlockTimeout),
	}
}
