package models

import "time"

// WorkerStatus is the lifecycle state of a Worker Slot.
type WorkerStatus string

const (
	WorkerIdle   WorkerStatus = "idle"
	WorkerActive WorkerStatus = "active"
)

// WorkerSlot is one of the engine's N execution contexts. Slots are reused
// across scrapes; ScrapeID is fresh on every enqueue so two concurrent
// scrapes of the same URL remain distinguishable.
type WorkerSlot struct {
	WorkerID  int
	ScrapeID  string
	URL       string
	StartedAt time.Time
	Status    WorkerStatus
}
