package queue

import "time"

// Scheduler defers a callback. Injected so tests can drive retry passes
// without waiting on wall-clock time.
type Scheduler interface {
	// AfterFunc runs fn once after d and returns a cancel function.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

type timerScheduler struct{}

// NewTimerScheduler returns the wall-clock Scheduler used outside tests.
func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
