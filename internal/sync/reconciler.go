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
)

// DefaultPreviewTTL bounds how stale a cached detail fetch may be before
// it is refetched.
const DefaultPreviewTTL = 24 * time.Hour

const snippetLimit = 100

// Reconciler handles the per-conversation operations that sit outside
// the pagination loop: detail fetches, backups, and remote deletes
// reconciled back into the cache.
type Reconciler struct {
	db         *store.DB
	registry   *platform.Registry
	creds      *credential.Store
	bus        *bus.Bus
	logger     *zap.Logger
	previewTTL time.Duration
}

// NewReconciler creates a reconciler. A previewTTL of zero means the
// default.
func NewReconciler(db *store.DB, registry *platform.Registry, creds *credential.Store, b *bus.Bus, logger *zap.Logger, previewTTL time.Duration) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if previewTTL <= 0 {
		previewTTL = DefaultPreviewTTL
	}
	return &Reconciler{
		db:         db,
		registry:   registry,
		creds:      creds,
		bus:        b,
		logger:     logger,
		previewTTL: previewTTL,
	}
}

// resolve returns the platform adapter with the session credential
// injected, or an auth error when no credential was pushed this session.
func (r *Reconciler) resolve(platformID string) (platform.Adapter, error) {
	adapter, ok := r.registry.Get(platformID)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", platformID)
	}
	cred, ok := r.creds.Get(platformID)
	if !ok {
		return nil, &platform.Error{Code: platform.CodeAuthRequired,
			Message: fmt.Sprintf("no credential for %s, open the site to authenticate", platformID)}
	}
	adapter.SetToken(cred)
	return adapter, nil
}

// Detail returns a conversation's messages, read through the preview
// cache. A remote fetch also enriches the cached list entry with a
// snippet and message count.
func (r *Reconciler) Detail(ctx context.Context, platformID, id string) ([]store.Message, error) {
	if p, err := r.db.GetPreview(platformID, id, r.previewTTL); err == nil && p != nil {
		return p.Messages, nil
	}

	adapter, err := r.resolve(platformID)
	if err != nil {
		return nil, err
	}
	msgs, err := adapter.ConversationDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.db.PutPreview(platformID, id, msgs); err != nil {
		r.logger.Warn("preview cache write failed",
			zap.String("platform", platformID), zap.String("id", id), zap.Error(err))
	}
	if err := r.db.EnrichConversation(platformID, id, snippetOf(msgs), len(msgs)); err != nil {
		r.logger.Warn("conversation enrich failed",
			zap.String("platform", platformID), zap.String("id", id), zap.Error(err))
	} else {
		r.publish(bus.KindCacheUpdated, platformID)
	}
	return msgs, nil
}

// Backup stores a point-in-time copy of the conversation. The copy's
// lifetime is independent from the live conversation.
func (r *Reconciler) Backup(ctx context.Context, platformID, id string) (*store.Backup, error) {
	msgs, err := r.Detail(ctx, platformID, id)
	if err != nil {
		return nil, err
	}

	title := id
	if c, err := r.db.GetConversation(platformID, id); err == nil && c != nil && c.Title != "" {
		title = c.Title
	}

	b := &store.Backup{
		ID:         id,
		Title:      title,
		Platform:   platformID,
		Messages:   msgs,
		BackupTime: time.Now().UnixMilli(),
	}
	if err := r.db.PutBackup(b); err != nil {
		return nil, fmt.Errorf("store backup: %w", err)
	}
	r.publish(bus.KindCacheBackups, platformID)
	return b, nil
}

// Delete removes a conversation remotely, then reconciles the cache.
// With backup set, a failed backup vetoes the delete entirely. A failed
// remote delete leaves the cache untouched.
func (r *Reconciler) Delete(ctx context.Context, platformID, id string, backup bool) error {
	if backup {
		if _, err := r.Backup(ctx, platformID, id); err != nil {
			return fmt.Errorf("backup before delete: %w", err)
		}
	}

	adapter, err := r.resolve(platformID)
	if err != nil {
		return err
	}
	if err := adapter.DeleteConversation(ctx, id); err != nil {
		return err
	}

	removed, err := r.db.RemoveConversation(platformID, id)
	if err != nil {
		r.logger.Error("cache reconcile after delete failed",
			zap.String("platform", platformID), zap.String("id", id), zap.Error(err))
		return err
	}
	_ = r.db.DeletePreview(platformID, id)
	if removed {
		r.publish(bus.KindCacheUpdated, platformID)
	}
	r.logger.Info("conversation deleted",
		zap.String("platform", platformID), zap.String("id", id), zap.Bool("backup", backup))
	return nil
}

// DeleteBatch deletes sequentially, best-effort. One item's failure
// never aborts the batch; the result names each item's fate.
func (r *Reconciler) DeleteBatch(ctx context.Context, platformID string, ids []string, backup bool) (platform.DeleteResult, error) {
	if _, err := r.resolve(platformID); err != nil {
		return platform.DeleteResult{}, err
	}

	res := platform.DeleteResult{Succeeded: []string{}, Failed: []string{}}
	for _, id := range ids {
		if err := r.Delete(ctx, platformID, id, backup); err != nil {
			r.logger.Warn("batch delete item failed",
				zap.String("platform", platformID), zap.String("id", id), zap.Error(err))
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res, nil
}

// Backups lists backup metadata, newest first. An empty platform lists
// every platform's backups.
func (r *Reconciler) Backups(platformID string) ([]store.Backup, error) {
	return r.db.ListBackups(platformID)
}

// BackupDetail returns one full backup including messages, nil if absent.
func (r *Reconciler) BackupDetail(platformID, id string) (*store.Backup, error) {
	return r.db.GetBackup(platformID, id)
}

// DeleteBackup drops a stored backup. The live conversation, if it still
// exists, is untouched.
func (r *Reconciler) DeleteBackup(platformID, id string) (bool, error) {
	ok, err := r.db.DeleteBackup(platformID, id)
	if err == nil && ok {
		r.publish(bus.KindCacheBackups, platformID)
	}
	return ok, err
}

func (r *Reconciler) publish(kind, platformID string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: platformID})
}

// snippetOf derives the list-view snippet: the first user message,
// truncated on a rune boundary.
func snippetOf(msgs []store.Message) string {
	for _, m := range msgs {
		if m.Role != store.RoleUser {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) > snippetLimit {
			return string(runes[:snippetLimit]) + "…"
		}
		return m.Content
	}
	return ""
}
