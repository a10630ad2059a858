package store

import (
	"database/sql"
	"time"
)

// SetProgress records how far a running sync has gotten. A progress row
// exists exactly while a run is in flight.
func (db *DB) SetProgress(platform string, loaded, total int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_progress (platform, loaded, total, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			loaded = excluded.loaded,
			total = excluded.total,
			updated_at = excluded.updated_at`,
		platform, loaded, total, now)
	return err
}

// Progress returns the platform's in-flight sync progress, or nil when no
// run is active.
func (db *DB) Progress(platform string) (*SyncProgress, error) {
	var p SyncProgress
	err := db.QueryRow(`SELECT loaded, total FROM sync_progress WHERE platform = ?`, platform).
		Scan(&p.Loaded, &p.Total)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ClearProgress removes the progress row the instant a run ends,
// regardless of how it ended.
func (db *DB) ClearProgress(platform string) error {
	_, err := db.Exec(`DELETE FROM sync_progress WHERE platform = ?`, platform)
	return err
}

// SetSyncError records the last human-readable failure for a platform.
func (db *DB) SetSyncError(platform, message string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_errors (platform, message, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			message = excluded.message,
			updated_at = excluded.updated_at`,
		platform, message, now)
	return err
}

// SyncError returns the platform's last failure message, or "" if none.
func (db *DB) SyncError(platform string) (string, error) {
	var msg string
	err := db.QueryRow(`SELECT message FROM sync_errors WHERE platform = ?`, platform).Scan(&msg)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return msg, nil
}

// ClearSyncError removes the platform's failure record. Called at the
// start of every new run attempt.
func (db *DB) ClearSyncError(platform string) error {
	_, err := db.Exec(`DELETE FROM sync_errors WHERE platform = ?`, platform)
	return err
}
