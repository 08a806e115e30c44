package persist

import (
	"time"

	"github.com/samber/lo"
)

// StaticRules is a RuleSource with fixed values.
type StaticRules struct {
	Delay        time.Duration
	DynamicTypes []string
}

// NewStaticRules creates rules with the given delay and types that use dynamic updates.
func NewStaticRules(delay time.Duration, dynamicTypes ...string) *StaticRules {
	return &StaticRules{
		Delay:        delay,
		DynamicTypes: dynamicTypes,
	}
}

// DelayWait returns the debounce delay.
func (r *StaticRules) DelayWait() time.Duration {
	return r.Delay
}

// DynamicUpdate returns whether updates of the type carry the modified fields.
func (r *StaticRules) DynamicUpdate(entityType string) bool {
	return lo.Contains(r.DynamicTypes, entityType)
}

var _ DynamicUpdateRule = &StaticRules{}
