package sync

import (
	"testing"
	"time"

	"github.com/chatsync-dev/chatsync/internal/bus"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := newTracker(nil)

	if tr.phase("chatgpt") != PhaseIdle {
		t.Errorf("initial phase = %s", tr.phase("chatgpt"))
	}
	if !tr.begin("chatgpt") {
		t.Fatal("begin() on idle platform = false")
	}
	if tr.begin("chatgpt") {
		t.Error("begin() while running = true")
	}
	// Other platforms are unaffected.
	if !tr.begin("claude") {
		t.Error("begin(claude) blocked by chatgpt run")
	}

	if !tr.requestAbort("chatgpt") {
		t.Error("requestAbort() while running = false")
	}
	if !tr.aborting("chatgpt") {
		t.Error("aborting() after request = false")
	}
	if tr.requestAbort("chatgpt") {
		t.Error("requestAbort() while already aborting = true")
	}
	if tr.begin("chatgpt") {
		t.Error("begin() while aborting = true")
	}

	tr.end("chatgpt", "")
	if tr.phase("chatgpt") != PhaseIdle {
		t.Errorf("phase after end = %s", tr.phase("chatgpt"))
	}
	if !tr.begin("chatgpt") {
		t.Error("begin() after end = false")
	}
}

func TestTrackerAbortIdle(t *testing.T) {
	tr := newTracker(nil)
	if tr.requestAbort("chatgpt") {
		t.Error("requestAbort() on idle platform = true")
	}
}

func TestTrackerEndPublishesOutcome(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	tr := newTracker(b)
	tr.begin("chatgpt")
	tr.end("chatgpt", bus.KindSyncCompleted)

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindSyncCompleted || evt.Payload != "chatgpt" {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for outcome event")
	}
}
