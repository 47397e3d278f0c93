package metrics

import (
	"testing"
)

func TestPrometheusObserver(t *testing.T) {
	obs := NewPrometheusObserver()

	// Just call methods to ensure no panic
	obs.SetQueueDepth(3, 1)
	obs.RecordAttempt("expense", true)
	obs.RecordAttempt("expense", false)
	obs.RecordPersistError()
}
