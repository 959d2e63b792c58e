package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ AccountRepository = (*AccountRepo)(nil)

// AccountRepo handles database operations for tracked creator accounts
type AccountRepo struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) GetAccount(id int64) (*Account, error) {
	row := r.db.QueryRow(selectAccount+` WHERE id = ?`, id)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

func (r *AccountRepo) GetAccountByRemoteKey(remoteKey string) (*Account, error) {
	row := r.db.QueryRow(selectAccount+` WHERE remote_key = ?`, remoteKey)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by remote key: %w", err)
	}

	return account, nil
}

func (r *AccountRepo) GetAllAccounts() ([]Account, error) {
	rows, err := r.db.Query(selectAccount + ` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	return accounts, nil
}

// UpsertAccount inserts or updates an account keyed by its stable remote key
// and returns the database id
func (r *AccountRepo) UpsertAccount(remoteKey, name, feedURL string, maxDownloadCount int, autoSync bool, syncCron string) (int64, error) {
	existing, err := r.GetAccountByRemoteKey(remoteKey)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing account: %w", err)
	}

	now := time.Now().UTC()

	if existing != nil {
		_, err := r.db.Exec(`
			UPDATE accounts
			SET name = ?, feed_url = ?, max_download_count = ?, auto_sync = ?, sync_cron = ?, updated_at = ?
			WHERE id = ?
		`, name, feedURL, maxDownloadCount, boolToInt(autoSync), syncCron, now, existing.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update account: %w", err)
		}
		return existing.ID, nil
	}

	result, err := r.db.Exec(`
		INSERT INTO accounts (remote_key, name, feed_url, max_download_count, auto_sync, sync_cron, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, remoteKey, name, feedURL, maxDownloadCount, boolToInt(autoSync), syncCron, SyncStatusIdle, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get account id: %w", err)
	}

	return id, nil
}

func (r *AccountRepo) UpdateSyncStatus(id int64, status string) error {
	_, err := r.db.Exec(`
		UPDATE accounts SET sync_status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

// FinishSync records the end of a sync for the account: terminal status,
// last sync timestamp, and the downloaded counter grown by this run
func (r *AccountRepo) FinishSync(id int64, status string, newDownloads int) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		UPDATE accounts
		SET sync_status = ?, downloaded_count = downloaded_count + ?, last_sync_at = ?, updated_at = ?
		WHERE id = ?
	`, status, newDownloads, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish sync: %w", err)
	}
	return nil
}

func (r *AccountRepo) UpdateAccountSchedule(id int64, autoSync bool, syncCron string) error {
	_, err := r.db.Exec(`
		UPDATE accounts SET auto_sync = ?, sync_cron = ?, updated_at = ? WHERE id = ?
	`, boolToInt(autoSync), syncCron, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update account schedule: %w", err)
	}
	return nil
}

const selectAccount = `
	SELECT id, remote_key, name, feed_url, max_download_count,
	       downloaded_count, auto_sync, sync_cron, last_sync_at,
	       sync_status, created_at, updated_at
	FROM accounts`

func scanAccount(row rowScanner) (*Account, error) {
	var account Account
	var autoSync int
	var lastSyncAt sql.NullTime

	err := row.Scan(
		&account.ID, &account.RemoteKey, &account.Name, &account.FeedURL,
		&account.MaxDownloadCount, &account.DownloadedCount, &autoSync,
		&account.SyncCron, &lastSyncAt, &account.SyncStatus,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.AutoSync = autoSync != 0
	if lastSyncAt.Valid {
		account.LastSyncAt = &lastSyncAt.Time
	}

	return &account, nil
}
