package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PutPreview stores a detail-fetch result for read-through caching.
func (db *DB) PutPreview(platform, conversationID string, messages []Message) error {
	msgs, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal preview messages: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO preview_cache (platform, conversation_id, messages, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(platform, conversation_id) DO UPDATE SET
			messages = excluded.messages,
			cached_at = excluded.cached_at`,
		platform, conversationID, string(msgs), now)
	return err
}

// GetPreview returns a cached detail-fetch result younger than maxAge,
// or nil on a miss. Expired rows are deleted on the way out.
func (db *DB) GetPreview(platform, conversationID string, maxAge time.Duration) (*Preview, error) {
	var p Preview
	var msgs string
	err := db.QueryRow(`
		SELECT messages, cached_at FROM preview_cache
		WHERE platform = ? AND conversation_id = ?`, platform, conversationID).
		Scan(&msgs, &p.CachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if time.Since(time.UnixMilli(p.CachedAt)) > maxAge {
		_, _ = db.Exec(`DELETE FROM preview_cache WHERE platform = ? AND conversation_id = ?`,
			platform, conversationID)
		return nil, nil
	}

	if err := json.Unmarshal([]byte(msgs), &p.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal preview messages: %w", err)
	}
	return &p, nil
}

// DeletePreview drops a cached preview. Safe to call when absent.
func (db *DB) DeletePreview(platform, conversationID string) error {
	_, err := db.Exec(`DELETE FROM preview_cache WHERE platform = ? AND conversation_id = ?`,
		platform, conversationID)
	return err
}
