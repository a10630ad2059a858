package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chatsync-dev/chatsync/internal/bus"
	"github.com/chatsync-dev/chatsync/internal/credential"
	"github.com/chatsync-dev/chatsync/internal/platform"
	"github.com/chatsync-dev/chatsync/internal/store"
)

// fakeAdapter serves a fixed conversation list with real pagination
// semantics. With gated set, every Conversations call announces its
// offset on served and blocks until the test sends on release, which
// lets tests observe the cache between pages.
type fakeAdapter struct {
	id    string
	convs []store.Conversation
	msgs  map[string][]store.Message

	mu        sync.Mutex
	token     string
	offsets   []int
	authCalls int
	deleted   []string

	authFail  *platform.Error
	failAt    int // offset at which Conversations fails, -1 to disable
	failErr   error
	emptyAt   int // offset at which an empty HasMore page is served, -1 to disable
	detailErr error
	deleteErr map[string]error

	gated   bool
	served  chan int
	release chan struct{}
}

func newFake(n int) *fakeAdapter {
	f := &fakeAdapter{
		id:        "chatgpt",
		msgs:      map[string][]store.Message{},
		deleteErr: map[string]error{},
		failAt:    -1,
		emptyAt:   -1,
	}
	for i := 0; i < n; i++ {
		f.convs = append(f.convs, store.Conversation{
			ID:         fmt.Sprintf("conv-%03d", i),
			Title:      fmt.Sprintf("conversation %d", i),
			UpdateTime: int64(100000 - i),
		})
	}
	return f
}

func (f *fakeAdapter) gate() {
	f.gated = true
	f.served = make(chan int, 16)
	f.release = make(chan struct{})
}

func (f *fakeAdapter) ID() string          { return f.id }
func (f *fakeAdapter) Name() string        { return "Fake" }
func (f *fakeAdapter) Hostnames() []string { return []string{"fake.example"} }

func (f *fakeAdapter) SetToken(c string) {
	f.mu.Lock()
	f.token = c
	f.mu.Unlock()
}

func (f *fakeAdapter) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeAdapter) CheckAuth(ctx context.Context) platform.AuthResult {
	f.mu.Lock()
	f.authCalls++
	fail := f.authFail
	f.mu.Unlock()
	if fail != nil {
		return platform.AuthResult{OK: false, Code: fail.Code, Message: fail.Message}
	}
	return platform.AuthResult{OK: true}
}

func (f *fakeAdapter) Conversations(ctx context.Context, offset, limit int) (*platform.Page, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.mu.Unlock()

	if f.gated {
		f.served <- offset
		<-f.release
	}

	if f.failAt == offset && f.failErr != nil {
		return nil, f.failErr
	}
	if f.emptyAt == offset {
		return &platform.Page{Total: len(f.convs), HasMore: true}, nil
	}

	end := offset + limit
	if end > len(f.convs) {
		end = len(f.convs)
	}
	var page []store.Conversation
	if offset < len(f.convs) {
		page = f.convs[offset:end]
	}
	return &platform.Page{
		Conversations: page,
		Total:         len(f.convs),
		HasMore:       offset+len(page) < len(f.convs),
	}, nil
}

func (f *fakeAdapter) ConversationDetail(ctx context.Context, id string) ([]store.Message, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.msgs[id], nil
}

func (f *fakeAdapter) DeleteConversation(ctx context.Context, id string) error {
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) DeleteConversations(ctx context.Context, ids []string) platform.DeleteResult {
	res := platform.DeleteResult{Succeeded: []string{}, Failed: []string{}}
	for _, id := range ids {
		if err := f.DeleteConversation(ctx, id); err != nil {
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}

func (f *fakeAdapter) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls + len(f.offsets)
}

func (f *fakeAdapter) pageOffsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.offsets...)
}

type harness struct {
	db    *store.DB
	bus   *bus.Bus
	creds *credential.Store
	reg   *platform.Registry
	eng   *Engine
	fake  *fakeAdapter
}

func newHarness(t *testing.T, fake *fakeAdapter) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	creds := credential.NewStore(b)
	reg := platform.NewRegistry(fake)
	eng := NewEngine(db, reg, creds, b, nil, Options{
		PageSize:  50,
		PageDelay: time.Millisecond,
	})
	return &harness{db: db, bus: b, creds: creds, reg: reg, eng: eng, fake: fake}
}

// waitKind drains the channel until the wanted event kind arrives.
func waitKind(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s event", kind)
		}
	}
}

func TestSyncFullRun(t *testing.T) {
	h := newHarness(t, newFake(120))
	h.creds.Set("chatgpt", "tok")

	ch, unsub := h.bus.Subscribe("sync.", 32)
	defer unsub()

	res, err := h.eng.StartSync("chatgpt", false)
	if err != nil || res != StartBegun {
		t.Fatalf("StartSync() = %v, %v", res, err)
	}
	waitKind(t, ch, bus.KindSyncCompleted)

	snap, err := h.db.Snapshot("chatgpt")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || len(snap.Conversations) != 120 || snap.TotalCount != 120 || !snap.SyncComplete {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Conversations[0].ID != "conv-000" || snap.Conversations[119].ID != "conv-119" {
		t.Error("conversation order not preserved")
	}

	if got := h.fake.pageOffsets(); len(got) != 3 || got[0] != 0 || got[1] != 50 || got[2] != 100 {
		t.Errorf("page offsets = %v, want [0 50 100]", got)
	}

	if p, _ := h.db.Progress("chatgpt"); p != nil {
		t.Errorf("progress after completion = %+v, want nil", p)
	}
	if h.eng.Phase("chatgpt") != PhaseIdle {
		t.Errorf("phase after completion = %s", h.eng.Phase("chatgpt"))
	}
}

func TestSyncPersistsIncrementally(t *testing.T) {
	fake := newFake(150)
	fake.gate()
	h := newHarness(t, fake)
	h.creds.Set("chatgpt", "tok")

	ch, unsub := h.bus.Subscribe("sync.", 32)
	defer unsub()

	if _, err := h.eng.StartSync("chatgpt", false); err != nil {
		t.Fatal(err)
	}

	<-fake.served // page at offset 0 requested
	fake.release <- struct{}{}
	<-fake.served // page at offset 50 requested, so page 0 is persisted

	snap, err := h.db.Snapshot("chatgpt")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || len(snap.Conversations) != 50 {
		t.Fatalf("mid-run snapshot = %+v, want 50 conversations", snap)
	}
	if snap.SyncComplete {
		t.Error("mid-run snapshot marked complete")
	}
	if p, _ := h.db.Progress("chatgpt"); p == nil || p.Loaded != 50 || p.Total != 150 {
		t.Errorf("mid-run progress = %+v, want 50/150", p)
	}

	fake.release <- struct{}{}
	<-fake.served
	fake.release <- struct{}{}
	waitKind(t, ch, bus.KindSyncCompleted)

	snap, _ = h.db.Snapshot("chatgpt")
	if len(snap.Conversations) != 150 || !snap.SyncComplete {
		t.Errorf("final snapshot = %d convs, complete=%v", len(snap.Conversations), snap.SyncComplete)
	}
}

func TestSyncSingleFlight(t *testing.T) {
	fake := newFake(60)
	fake.gate()
	h := newHarness(t, fake)
	h.creds.Set("chatgpt", "tok")

	ch, unsub := h.bus.Subscribe("sync.", 32)
	defer unsub()

	if res, _ := h.eng.StartSync("chatgpt", false); res != StartBegun {
		t.Fatalf("first StartSync() = %v", res)
	}
	<-fake.served

	if res, err := h.eng.StartSync("chatgpt", false); res != StartAlreadyRunning || err != nil {
		t.Errorf("concurrent StartSync() = %v, %v", res, err)
	}

	fake.release <- struct{}{}
	<-fake.served
	fake.release <- struct{}{}
	waitKind(t, ch, bus.KindSyncCompleted)

	if got := fake.pageOffsets(); len(got) != 2 {
		t.Errorf("page offsets = %v, want a single run's [0 50]", got)
	}
}

func TestSyncAbortBetweenPages(t *testing.T) {
	fake := newFake(150)
	fake.gate()
	h := newHarness(t, fake)
	h.creds.Set("chatgpt", "tok")

	ch, unsub := h.bus.Subscribe("sync.", 32)
	defer unsub()

	if _, err := h.eng.StartSync("chatgpt", false); err != nil {
		t.Fatal(err)
	}
	<-fake.served
	fake.release <- struct{}{}
	<-fake.served // second page in flight

	if !h.eng.StopSync("chatgpt") {
		t.Fatal("StopSync() while running = false")
	}
	fake.release <- struct{}{} // in-flight page completes, then the loop observes the abort
	waitKind(t, ch, bus.KindSyncAborted)

	snap, err := h.db.Snapshot("chatgpt")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || len(snap.Conversations) != 100 {
		t.Fatalf("snapshot after abort = %+v, want the 100 loaded conversations", snap)
	}
	if snap.SyncComplete {
		t.Error("aborted snapshot marked complete")
	}
	if got := fake.pageOffsets(); len(got) != 2 {
		t.Errorf("page offsets = %v, third page fetched after abort", got)
	}
	if p, _ := h.db.Progress("chatgpt"); p != nil {
		t.Errorf("progress after abort = %+v, want nil", p)
	}
	if h.eng.Phase("chatgpt") != PhaseIdle {
		t.Errorf("phase after abort = %s", h.eng.Phase("chatgpt"))
	}
}

func TestSyncFreshCacheSkipsRemote(t *testing.T) {
	fake := newFake(10)
	h := newHarness(t, fake)
	h.creds.Set("chatgpt", "tok")

	seed := &store.PlatformCache{
		Conversations: []store.Conversation{{ID: "a", Title: "seeded"}},
		TotalCount:    1,
		LastSyncTime:  time.Now().UnixMilli(),
		SyncComplete:  true,
	}
	if err := h.db.ReplaceSnapshot("chatgpt", seed); err != nil {
		t.Fatal(err)
	}

	res, err := h.eng.StartSync("chatgpt", false)
	if err != nil || res != StartSkippedFresh {
		t.Fatalf("StartSync() on fresh cache = %v, %v", res, err)
	}
	if n := fake.remoteCalls(); n != 0 {
		t.Errorf("fresh start made %d remote calls, want 0", n)
	}

	// force bypasses freshness.
	ch, unsub := h.bus.Subscribe("sync.", 32)
	defer unsub()
	if res, _ := h.eng.StartSync("chatgpt", true); res != StartBegun {
		t.Fatalf("forced StartSync() = %v", res)
	}
	waitKind(t, ch, bus.KindSyncCompleted)
	if fake.remoteCalls() == 0 {
		t.Error("forced start made no remote calls")
	}
}

func TestSyncStaleCacheResyncs(t *testing.T) {
	fake := newFake(10)
	h := newHarness(t, fake)
	h.creds.Set("chatgpt", "tok")

	seed := &store.PlatformCache{
		TotalCount:   0,
		LastSyncTime: time.Now().Add(-time.Hour).UnixMilli(),
		SyncComplete: true,
	}
	if err := h.db.ReplaceSnapshot("chatgpt", seed); err != nil {
		t.Fatal(err)
	}

	ch, unsub := h.bus.Subscribe("sync.", 32)
	defer unsub()
	res, err := h.eng.StartSync("chatgpt", false)
	if err != nil || res != StartBegun {
		t.Fatalf("StartSync() on stale cache = %v, %v", res, err)
	}
	waitKind(t, ch, bus.KindSyncCompleted)

	snap, _ := h.db.Snapshot("chatgpt")
	if len(snap.Conversations) != 10 {
		t.Errorf("resynced snapshot = %d convs, want 10", len(snap.Conversations))
	}
}

func TestSyncNoCredential(t *testing.T) {
	h := newHarness(t, newFake(10))

	res, err := h.eng.StartSync("chatgpt", false)
	if res != StartRejected {
		t.Errorf("StartSync() without credential = %v", res)
	}
	if platform.CodeOf(err) != platform.CodeAuthRequired {
		t.Errorf("error code = %v, want AUTH_REQUIRED", platform.CodeOf(err))
	}
	if msg, _ := h.db.SyncError("chatgpt"); msg == "" {
		t.Error("no sync error recorded")
	}
	if h.eng.Phase("chatgpt") != PhaseIdle {
		t.Error("rejected start left platform non-idle")
	}
}

func TestSyncAuthFailure(t *testing.T) {
	fake := newFake(10)
	fake.authFail = &platform.Error{Code: platform.CodeAuthRequired, Message: "session expired"}
	h := newHarness(t, fake)
	h.creds.Set("chatgpt", "expired-tok")

	res, err := h.eng.StartSync("chatgpt", false)
	if res != StartRejected || platform.CodeOf(err) != platform.CodeAuthRequired {
		t.Errorf("StartSync() = %v, %v", res, err)
	}
	if msg, _ := h.db.SyncError("chatgpt"); msg == "" {
		t.Error("no sync error recorded")
	}
	if len(fake.pageOffsets()) != 0 {
		t.Error("pages fetched despite failed auth check")
	}
}

func TestSyncRateLimitMidRun(t *testing.T) {
	fake := newFake(120)
	fake.failAt = 50
	fake.failErr = &platform.Error{Code: platform.CodeRateLimited, Message: "chatgpt rate limit hit", RetryAfter: time.Minute}
	h := newHarness(t, fake)
	h.creds.Set("chatgpt", "tok")

	ch, unsub := h.bus.Subscribe("sync.", 32)
	defer unsub()

	if _, err := h.eng.StartSync("chatgpt", false); err != nil {
		t.Fatal(err)
	}
	waitKind(t, ch, bus.KindSyncFailed)

	// Page one survives the failure.
	snap, err := h.db.Snapshot("chatgpt")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || len(snap.Conversations) != 50 || snap.SyncComplete {
		t.Fatalf("snapshot after rate limit = %+v, want 50 incomplete convs", snap)
	}
	msg, _ := h.db.SyncError("chatgpt")
	if msg == "" {
		t.Fatal("no sync error recorded")
	}
	if want := string(platform.CodeRateLimited); len(msg) < len(want) || msg[:len(want)] != want {
		t.Errorf("sync error = %q, want %s prefix", msg, want)
	}
	if p, _ := h.db.Progress("chatgpt"); p != nil {
		t.Errorf("progress after failure = %+v, want nil", p)
	}
}

func TestSyncUnusablePage(t *testing.T) {
	fake := newFake(120)
	fake.emptyAt = 50
	h := newHarness(t, fake)
	h.creds.Set("chatgpt", "tok")

	ch, unsub := h.bus.Subscribe("sync.", 32)
	defer unsub()

	if _, err := h.eng.StartSync("chatgpt", false); err != nil {
		t.Fatal(err)
	}
	waitKind(t, ch, bus.KindSyncFailed)

	snap, _ := h.db.Snapshot("chatgpt")
	if snap == nil || len(snap.Conversations) != 50 {
		t.Fatalf("snapshot = %+v, want the 50 conversations before the bad page", snap)
	}
	if msg, _ := h.db.SyncError("chatgpt"); msg == "" {
		t.Error("no sync error recorded")
	}
}

func TestSyncAutoStartOnCredential(t *testing.T) {
	h := newHarness(t, newFake(30))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.eng.Start(ctx)
	defer h.eng.Stop()

	ch, unsub := h.bus.Subscribe("sync.", 32)
	defer unsub()

	h.creds.Set("chatgpt", "tok")
	waitKind(t, ch, bus.KindSyncCompleted)

	snap, _ := h.db.Snapshot("chatgpt")
	if snap == nil || len(snap.Conversations) != 30 {
		t.Fatalf("snapshot after auto start = %+v", snap)
	}
}
