package backoff

import "time"

// MaxRetries limits the given policy to max retries, i.e. max+1 attempts in total.
func MaxRetries(p Policy, max int) Policy {
	return &maxRetriesPolicy{
		delegate: p,
		maxTries: max,
	}
}

type maxRetriesPolicy struct {
	delegate Policy
	maxTries int
	numTries int
}

func (b *maxRetriesPolicy) NextBackOff() time.Duration {
	if b.numTries >= b.maxTries {
		return Stop
	}
	b.numTries++

	return b.delegate.NextBackOff()
}

func (b *maxRetriesPolicy) New() Policy {
	return &maxRetriesPolicy{
		delegate: b.delegate.New(),
		maxTries: b.maxTries,
	}
}
