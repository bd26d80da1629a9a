package ringhost

import "time"

// Clock abstracts time for the coordinator so that deadline handling can
// be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// Schedule runs fn after d on the clock's own goroutine and returns a
	// cancel function. Cancel after firing is a no-op.
	Schedule(d time.Duration, fn func()) (cancel func())
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
