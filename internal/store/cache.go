package store

import (
	"database/sql"
	"fmt"
)

// ReplaceSnapshot overwrites the platform's cached conversation list and
// its sync metadata wholesale, in one transaction. The sync engine calls
// this after every page, so the cache is never more than one page behind
// a running sync. Conversation order is preserved via the position column.
func (db *DB) ReplaceSnapshot(platform string, snap *PlatformCache) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations WHERE platform = ?`, platform); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	for i, c := range snap.Conversations {
		if _, err := tx.Exec(`
			INSERT INTO conversations (platform, id, title, summary, create_time, update_time, is_starred, snippet, message_count, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			platform, c.ID, c.Title, c.Summary, c.CreateTime, c.UpdateTime, c.IsStarred, c.Snippet, c.MessageCount, i); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
	}

	complete := 0
	if snap.SyncComplete {
		complete = 1
	}
	if _, err := tx.Exec(`
		INSERT INTO platform_sync (platform, total_count, last_sync_time, sync_complete)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			total_count = excluded.total_count,
			last_sync_time = excluded.last_sync_time,
			sync_complete = excluded.sync_complete`,
		platform, snap.TotalCount, snap.LastSyncTime, complete); err != nil {
		return fmt.Errorf("upsert platform sync: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the platform's cached conversation list and sync
// metadata, or nil if the platform has never been synced.
func (db *DB) Snapshot(platform string) (*PlatformCache, error) {
	var snap PlatformCache
	var complete int
	err := db.QueryRow(`
		SELECT total_count, last_sync_time, sync_complete
		FROM platform_sync WHERE platform = ?`, platform).
		Scan(&snap.TotalCount, &snap.LastSyncTime, &complete)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.SyncComplete = complete != 0

	rows, err := db.Query(`
		SELECT id, title, summary, create_time, update_time, is_starred, snippet, message_count
		FROM conversations WHERE platform = ? ORDER BY position`, platform)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		c := Conversation{Platform: platform}
		if err := rows.Scan(&c.ID, &c.Title, &c.Summary, &c.CreateTime, &c.UpdateTime, &c.IsStarred, &c.Snippet, &c.MessageCount); err != nil {
			return nil, err
		}
		snap.Conversations = append(snap.Conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetConversation returns a single cached conversation, or nil if absent.
func (db *DB) GetConversation(platform, id string) (*Conversation, error) {
	c := Conversation{Platform: platform}
	err := db.QueryRow(`
		SELECT id, title, summary, create_time, update_time, is_starred, snippet, message_count
		FROM conversations WHERE platform = ? AND id = ?`, platform, id).
		Scan(&c.ID, &c.Title, &c.Summary, &c.CreateTime, &c.UpdateTime, &c.IsStarred, &c.Snippet, &c.MessageCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// RemoveConversation deletes a conversation from the cache after a
// successful remote delete, decrementing total_count in the same
// transaction. Returns false if the conversation was not cached.
func (db *DB) RemoveConversation(platform, id string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM conversations WHERE platform = ? AND id = ?`, platform, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, tx.Commit()
	}

	if _, err := tx.Exec(`
		UPDATE platform_sync SET total_count = MAX(total_count - 1, 0)
		WHERE platform = ?`, platform); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit remove: %w", err)
	}
	return true, nil
}

// EnrichConversation fills in the lazily-populated snippet and message
// count after a detail fetch. A missing row is not an error; the cache
// may have been replaced since the fetch started.
func (db *DB) EnrichConversation(platform, id, snippet string, messageCount int) error {
	_, err := db.Exec(`
		UPDATE conversations SET snippet = ?, message_count = ?
		WHERE platform = ? AND id = ?`,
		snippet, messageCount, platform, id)
	return err
}

// SearchConversations returns cached conversations whose title, summary or
// snippet contains the query, in cached (most recently updated) order.
func (db *DB) SearchConversations(platform, query string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"
	rows, err := db.Query(`
		SELECT id, title, summary, create_time, update_time, is_starred, snippet, message_count
		FROM conversations
		WHERE platform = ? AND (title LIKE ? OR summary LIKE ? OR snippet LIKE ?)
		ORDER BY position LIMIT ?`,
		platform, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		c := Conversation{Platform: platform}
		if err := rows.Scan(&c.ID, &c.Title, &c.Summary, &c.CreateTime, &c.UpdateTime, &c.IsStarred, &c.Snippet, &c.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
