package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. The segment before the first dot is the subscription namespace.
const (
	// KindCredentialSet fires when a platform credential is stored.
	// Payload: platform id. The sync engine auto-starts a run on it.
	KindCredentialSet = "credential.set"

	// KindCacheUpdated fires after a platform cache snapshot write or a
	// delete reconciliation. Payload: platform id.
	KindCacheUpdated = "cache.platform_updated"
	// KindCacheProgress fires after a sync progress write. Payload: platform id.
	KindCacheProgress = "cache.progress"
	// KindCacheBackups fires after a backup write or delete. Payload: platform id.
	KindCacheBackups = "cache.backups"

	// Sync run lifecycle. Payload: platform id.
	KindSyncStarted   = "sync.started"
	KindSyncCompleted = "sync.completed"
	KindSyncAborted   = "sync.aborted"
	KindSyncFailed    = "sync.failed"
)
