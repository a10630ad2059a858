package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// PutBackup stores a point-in-time copy of a conversation. Re-backing up
// the same conversation replaces the previous copy.
func (db *DB) PutBackup(b *Backup) error {
	msgs, err := json.Marshal(b.Messages)
	if err != nil {
		return fmt.Errorf("marshal backup messages: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO backups (platform, id, title, messages, backup_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(platform, id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			backup_time = excluded.backup_time`,
		b.Platform, b.ID, b.Title, string(msgs), b.BackupTime)
	return err
}

// GetBackup returns a full backup including messages, or nil if absent.
func (db *DB) GetBackup(platform, id string) (*Backup, error) {
	b := Backup{Platform: platform}
	var msgs string
	err := db.QueryRow(`
		SELECT id, title, messages, backup_time FROM backups
		WHERE platform = ? AND id = ?`, platform, id).
		Scan(&b.ID, &b.Title, &msgs, &b.BackupTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(msgs), &b.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal backup messages: %w", err)
	}
	return &b, nil
}

// ListBackups returns backup metadata (no messages), newest first.
// An empty platform lists backups across all platforms.
func (db *DB) ListBackups(platform string) ([]Backup, error) {
	q := `SELECT platform, id, title, backup_time FROM backups`
	var args []any
	if platform != "" {
		q += ` WHERE platform = ?`
		args = append(args, platform)
	}
	q += ` ORDER BY backup_time DESC`

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Backup
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.Platform, &b.ID, &b.Title, &b.BackupTime); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBackup removes a backup. Deleting a backup never touches the live
// conversation. Returns false if no such backup existed.
func (db *DB) DeleteBackup(platform, id string) (bool, error) {
	res, err := db.Exec(`DELETE FROM backups WHERE platform = ? AND id = ?`, platform, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
