package sync

import (
	"sync"
	"time"

	"github.com/chatsync-dev/chatsync/internal/bus"
)

// Phase is a platform run's lifecycle phase. Completed/aborted/failed
// runs all return to idle; which way a run ended is recorded in the
// cache store (sync error, syncComplete), not here.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseRunning  Phase = "RUNNING"
	PhaseAborting Phase = "ABORTING"
)

// tracker enforces the per-platform run state machine:
// Idle → Running → (Idle | Aborting → Idle). At most one run per
// platform is ever in flight; platforms are fully independent.
type tracker struct {
	mu     sync.Mutex
	phases map[string]Phase
	bus    *bus.Bus
}

func newTracker(b *bus.Bus) *tracker {
	return &tracker{
		phases: make(map[string]Phase),
		bus:    b,
	}
}

// phase returns the platform's current phase.
func (t *tracker) phase(platform string) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.phases[platform]; ok {
		return p
	}
	return PhaseIdle
}

// begin moves Idle → Running. Returns false when a run is already in
// flight (or winding down), making a duplicate start a no-op.
func (t *tracker) begin(platform string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.phases[platform]; ok && p != PhaseIdle {
		return false
	}
	t.phases[platform] = PhaseRunning
	return true
}

// requestAbort moves Running → Aborting. The pagination loop observes
// the phase between pages; nothing is preempted mid-request.
func (t *tracker) requestAbort(platform string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phases[platform] != PhaseRunning {
		return false
	}
	t.phases[platform] = PhaseAborting
	return true
}

// aborting reports whether an abort was requested.
func (t *tracker) aborting(platform string) bool {
	return t.phase(platform) == PhaseAborting
}

// end returns the platform to Idle, whatever happened, and announces the
// run's outcome on the bus. An empty outcome means nothing ran, so
// nothing is announced.
func (t *tracker) end(platform, outcomeKind string) {
	t.mu.Lock()
	t.phases[platform] = PhaseIdle
	t.mu.Unlock()

	if t.bus != nil && outcomeKind != "" {
		t.bus.Publish(bus.Event{
			Kind:      outcomeKind,
			Timestamp: time.Now(),
			Payload:   platform,
		})
	}
}
