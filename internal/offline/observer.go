package offline

import "time"

// Observer receives queue and sync measurements.
type Observer interface {
	QueueSize(n int)
	ActionSynced(actionType string)
	ActionFailed(actionType string)
	PassFinished(outcome string, took time.Duration)
}

// Pass outcomes reported to Observer.PassFinished.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

type nopObserver struct{}

func (nopObserver) QueueSize(int)                      {}
func (nopObserver) ActionSynced(string)                {}
func (nopObserver) ActionFailed(string)                {}
func (nopObserver) PassFinished(string, time.Duration) {}
