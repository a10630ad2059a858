// Package sync drives full pagination of each platform's conversation
// list into the cache store, persisting partial progress after every
// page so observers can render data before a run finishes.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/chatsync-dev/chatsync/internal/bus"
	"github.com/chatsync-dev/chatsync/internal/credential"
	"github.com/chatsync-dev/chatsync/internal/platform"
	"github.com/chatsync-dev/chatsync/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Reference pacing and sizing. PageDelay is defensive spacing against the
// remote's own rate limiting; Freshness is the window in which a
// non-forced start is skipped after a completed run.
const (
	DefaultPageSize  = 50
	DefaultPageDelay = 300 * time.Millisecond
	DefaultFreshness = 5 * time.Minute
)

// Options tune the engine. Zero values mean the defaults above.
type Options struct {
	PageSize  int
	PageDelay time.Duration
	Freshness time.Duration
}

// StartResult says what a start request did.
type StartResult string

const (
	// StartBegun: a new run was launched.
	StartBegun StartResult = "started"
	// StartAlreadyRunning: a run is in flight; the request was a no-op.
	StartAlreadyRunning StartResult = "already_running"
	// StartSkippedFresh: the cache is complete and fresh; no run needed.
	StartSkippedFresh StartResult = "fresh"
	// StartRejected: the run could not begin (no credential, auth failure).
	StartRejected StartResult = "rejected"
)

// Engine runs at most one pagination loop per platform. Platforms are
// fully independent: separate phase, separate abort, separate cache keys.
type Engine struct {
	db       *store.DB
	registry *platform.Registry
	creds    *credential.Store
	bus      *bus.Bus
	logger   *zap.Logger
	tracker  *tracker
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates a sync engine.
func NewEngine(db *store.DB, registry *platform.Registry, creds *credential.Store, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageDelay <= 0 {
		opts.PageDelay = DefaultPageDelay
	}
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	return &Engine{
		db:       db,
		registry: registry,
		creds:    creds,
		bus:      b,
		logger:   logger,
		tracker:  newTracker(b),
		opts:     opts,
	}
}

// Start subscribes to credential events on the bus: acquiring a
// credential auto-starts a run for that platform, so the first sync
// needs no manual trigger.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.ctx = ctx
	ch, unsub := e.bus.Subscribe("credential.", 16)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				platformID, ok := evt.Payload.(string)
				if !ok {
					continue
				}
				if _, err := e.StartSync(platformID, false); err != nil {
					e.logger.Warn("auto sync failed to start",
						zap.String("platform", platformID), zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the credential subscription and any in-flight pacing
// waits. Runs end cooperatively.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Phase returns the platform's current run phase.
func (e *Engine) Phase(platformID string) Phase {
	return e.tracker.phase(platformID)
}

// InProgress reports whether a run is active for the platform.
func (e *Engine) InProgress(platformID string) bool {
	return e.tracker.phase(platformID) != PhaseIdle
}

// StartSync launches a pagination run for the platform. A start while a
// run is in flight is a no-op reporting the current state. Unless forced,
// a complete cache younger than the freshness window short-circuits the
// run without any remote call.
func (e *Engine) StartSync(platformID string, force bool) (StartResult, error) {
	adapter, ok := e.registry.Get(platformID)
	if !ok {
		return StartRejected, fmt.Errorf("unknown platform %q", platformID)
	}

	if !e.tracker.begin(platformID) {
		return StartAlreadyRunning, nil
	}

	cred, ok := e.creds.Get(platformID)
	if !ok {
		err := &platform.Error{Code: platform.CodeAuthRequired,
			Message: fmt.Sprintf("no credential for %s, open the site to authenticate", platformID)}
		_ = e.db.SetSyncError(platformID, err.Error())
		e.tracker.end(platformID, bus.KindSyncFailed)
		return StartRejected, err
	}
	adapter.SetToken(cred)

	if !force {
		snap, err := e.db.Snapshot(platformID)
		if err == nil && snap != nil && snap.SyncComplete &&
			time.Since(time.UnixMilli(snap.LastSyncTime)) < e.opts.Freshness {
			e.tracker.end(platformID, "")
			return StartSkippedFresh, nil
		}
	}

	auth := adapter.CheckAuth(e.runCtx())
	if !auth.OK {
		msg := auth.Message
		if msg == "" {
			msg = "authentication check failed"
		}
		code := auth.Code
		if code == "" {
			code = platform.CodeAuthRequired
		}
		_ = e.db.SetSyncError(platformID, msg)
		e.tracker.end(platformID, bus.KindSyncFailed)
		return StartRejected, &platform.Error{Code: code, Message: msg}
	}

	_ = e.db.ClearSyncError(platformID)
	e.publish(bus.KindSyncStarted, platformID)
	go e.run(platformID, adapter)
	return StartBegun, nil
}

// StopSync requests a cooperative abort. The loop finishes its in-flight
// page; everything persisted so far stays in the cache with
// syncComplete=false.
func (e *Engine) StopSync(platformID string) bool {
	return e.tracker.requestAbort(platformID)
}

func (e *Engine) run(platformID string, adapter platform.Adapter) {
	ctx := e.runCtx()
	logger := e.logger.With(zap.String("platform", platformID))
	limiter := rate.NewLimiter(rate.Every(e.opts.PageDelay), 1)

	var acc []store.Conversation
	offset := 0
	outcome := bus.KindSyncFailed

	defer func() {
		// Progress vanishing is the observer's signal that the run ended,
		// however it ended.
		_ = e.db.ClearProgress(platformID)
		e.publish(bus.KindCacheProgress, platformID)
		e.tracker.end(platformID, outcome)
	}()

	for {
		if e.tracker.aborting(platformID) {
			logger.Info("sync aborted", zap.Int("loaded", len(acc)))
			outcome = bus.KindSyncAborted
			return
		}

		// First page passes immediately; later pages wait out the fixed
		// inter-page spacing.
		if err := limiter.Wait(ctx); err != nil {
			outcome = bus.KindSyncAborted
			return
		}

		page, err := adapter.Conversations(ctx, offset, e.opts.PageSize)
		if err != nil {
			logger.Error("page fetch failed", zap.Int("offset", offset), zap.Error(err))
			_ = e.db.SetSyncError(platformID, err.Error())
			return
		}
		if page == nil || (len(page.Conversations) == 0 && page.HasMore) {
			logger.Error("unusable page", zap.Int("offset", offset))
			_ = e.db.SetSyncError(platformID, "remote returned an unusable conversation page")
			return
		}

		acc = append(acc, page.Conversations...)

		snap := &store.PlatformCache{
			Conversations: acc,
			TotalCount:    page.Total,
			LastSyncTime:  time.Now().UnixMilli(),
			SyncComplete:  !page.HasMore,
		}
		if err := e.db.ReplaceSnapshot(platformID, snap); err != nil {
			logger.Error("cache write failed", zap.Error(err))
			_ = e.db.SetSyncError(platformID, err.Error())
			return
		}
		e.publish(bus.KindCacheUpdated, platformID)

		_ = e.db.SetProgress(platformID, len(acc), page.Total)
		e.publish(bus.KindCacheProgress, platformID)

		logger.Info("page persisted",
			zap.Int("offset", offset),
			zap.Int("loaded", len(acc)),
			zap.Int("total", page.Total))

		if !page.HasMore {
			outcome = bus.KindSyncCompleted
			logger.Info("sync completed", zap.Int("conversations", len(acc)))
			return
		}
		offset += len(page.Conversations)
	}
}

func (e *Engine) runCtx() context.Context {
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

func (e *Engine) publish(kind, platformID string) {
	if kind == "" || e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: platformID})
}
