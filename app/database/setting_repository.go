package database

import (
	"database/sql"
	"fmt"
)

// Well-known setting keys
const (
	SettingRemoteCredential = "remote_credential"
	SettingDownloadPath     = "download_path"
	SettingMaxDownloadCount = "max_download_count"
	SettingVideoConcurrency = "video_download_concurrency"
	SettingBatchDelay       = "batch_delay_seconds"
)

var _ SettingRepository = (*SettingRepo)(nil)

// SettingRepo handles the key/value settings table
type SettingRepo struct {
	db *DB
}

func NewSettingRepository(db *DB) *SettingRepo {
	return &SettingRepo{db: db}
}

// Get returns the value for key, or the empty string when unset
func (r *SettingRepo) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

func (r *SettingRepo) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}
