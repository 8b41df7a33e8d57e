// Package events implements the single-producer-many-consumer Event Bus
// described in spec.md §4.E1: a bounded FIFO carrying structured status
// events from the Run Orchestrator and Cleanup Coordinator to the UI
// collaborator.
package events

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Type identifies the payload carried by a RunEvent, per spec.md §6.
type Type string

const (
	TypeMergedConfig     Type = "merged_config"
	TypeInstanceDetails  Type = "instance_details"
	TypeStatusUpdate     Type = "status_update"
	TypeMutagenStatus    Type = "mutagen_status"
	TypeCleanupEvent     Type = "cleanup_event"
	TypeLog              Type = "log"
)

// Status values for a status_update event.
const (
	StatusLaunching  = "launching"
	StatusRunning    = "running"
	StatusStopping   = "stopping"
	StatusTerminating = "terminating"
	StatusError      = "error"
)

// Cleanup step status values for a cleanup_event.
const (
	CleanupInProgress = "in_progress"
	CleanupCompleted  = "completed"
	CleanupFailed     = "failed"
)

// RunEvent is a single published item on the bus. Payload is a tagged
// union per Type; only the field matching Type is meaningful.
type RunEvent struct {
	ID      string
	RunID   string
	Type    Type
	Status  string
	Step    string
	Text    string
	Config  any
	Instance any
	Mutagen MutagenPayload
}

// MutagenPayload is the mutagen_status payload shape from spec.md §6.
type MutagenPayload struct {
	State       string
	StatusText  string
	FilesSynced int
}

const capacity = 100

// Bus is a bounded FIFO queue of RunEvents. Producers enqueue
// non-blockingly; when full the oldest event is dropped and a warning is
// emitted to stderr. The consumer drains up to 10 events per tick.
type Bus struct {
	runID string
	mu    sync.Mutex
	items []RunEvent
}

// New creates an empty bus for one run.
func New(runID string) *Bus {
	return &Bus{runID: runID, items: make([]RunEvent, 0, capacity)}
}

// Publish enqueues an event, dropping the oldest entry on overflow.
func (b *Bus) Publish(evt RunEvent) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.RunID = b.runID

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= capacity {
		b.items = b.items[1:]
		fmt.Fprintln(os.Stderr, "campers: event bus full, dropping oldest event")
	}
	b.items = append(b.items, evt)
}

// Drain removes and returns up to n events in FIFO order. Returns an empty
// slice (never nil) when the bus is empty.
func (b *Bus) Drain(n int) []RunEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || len(b.items) == 0 {
		return []RunEvent{}
	}
	if n > len(b.items) {
		n = len(b.items)
	}
	out := make([]RunEvent, n)
	copy(out, b.items[:n])
	b.items = b.items[n:]
	return out
}

// Len reports the number of events currently queued.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Logf publishes a rendered log line (type log).
func (b *Bus) Logf(format string, args ...any) {
	b.Publish(RunEvent{Type: TypeLog, Text: fmt.Sprintf(format, args...)})
}

// Status publishes a status_update event.
func (b *Bus) Status(status string) {
	b.Publish(RunEvent{Type: TypeStatusUpdate, Status: status})
}

// Cleanup publishes a cleanup_event.
func (b *Bus) Cleanup(step, status string) {
	b.Publish(RunEvent{Type: TypeCleanupEvent, Step: step, Status: status})
}
