package metrics

// QueueObserver receives queue engine signals. The prometheus implementation
// is used in the agent; tests pass a nop.
type QueueObserver interface {
	SetQueueDepth(pending, failed int)
	RecordAttempt(kind string, success bool)
	RecordPersistError()
}

type NopObserver struct{}

func (NopObserver) SetQueueDepth(pending, failed int)  {}
func (NopObserver) RecordAttempt(kind string, ok bool) {}
func (NopObserver) RecordPersistError()                {}
