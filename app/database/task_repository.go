package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ TaskRepository = (*TaskRepo)(nil)

// TaskRepo handles database operations for tasks
type TaskRepo struct {
	db *DB
}

func NewTaskRepository(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

func (r *TaskRepo) GetTask(id int64) (*TaskWithAccounts, error) {
	row := r.db.QueryRow(`
		SELECT id, name, status, concurrency, downloaded_videos,
		       auto_sync, sync_cron, last_sync_at, created_at, updated_at
		FROM tasks
		WHERE id = ?
	`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	accounts, err := r.getTaskAccounts(id)
	if err != nil {
		return nil, err
	}

	return &TaskWithAccounts{Task: *task, Accounts: accounts}, nil
}

func (r *TaskRepo) GetTaskByName(name string) (*Task, error) {
	row := r.db.QueryRow(`
		SELECT id, name, status, concurrency, downloaded_videos,
		       auto_sync, sync_cron, last_sync_at, created_at, updated_at
		FROM tasks
		WHERE name = ?
	`, name)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task by name: %w", err)
	}

	return task, nil
}

func (r *TaskRepo) GetAllTasks() ([]Task, error) {
	rows, err := r.db.Query(`
		SELECT id, name, status, concurrency, downloaded_videos,
		       auto_sync, sync_cron, last_sync_at, created_at, updated_at
		FROM tasks
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

func (r *TaskRepo) GetTaskCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

func (r *TaskRepo) CreateTask(name string, concurrency int, autoSync bool, syncCron string) (int64, error) {
	now := time.Now().UTC()
	result, err := r.db.Exec(`
		INSERT INTO tasks (name, status, concurrency, auto_sync, sync_cron, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, name, TaskStatusPending, concurrency, boolToInt(autoSync), syncCron, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get task id: %w", err)
	}

	return id, nil
}

// SetTaskAccounts replaces the task's membership with the given account ids
func (r *TaskRepo) SetTaskAccounts(taskID int64, accountIDs []int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_accounts WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to clear task accounts: %w", err)
	}

	for _, accountID := range accountIDs {
		if _, err := tx.Exec(`
			INSERT INTO task_accounts (task_id, account_id) VALUES (?, ?)
		`, taskID, accountID); err != nil {
			return fmt.Errorf("failed to add task account: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task accounts: %w", err)
	}

	return nil
}

func (r *TaskRepo) UpdateTaskStatus(id int64, status string) error {
	_, err := r.db.Exec(`
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// FinishTask records the terminal status and the number of items downloaded
// by the run that just ended
func (r *TaskRepo) FinishTask(id int64, status string, downloadedVideos int) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		UPDATE tasks
		SET status = ?, downloaded_videos = ?, last_sync_at = ?, updated_at = ?
		WHERE id = ?
	`, status, downloadedVideos, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return nil
}

func (r *TaskRepo) UpdateTaskSchedule(id int64, autoSync bool, syncCron string) error {
	_, err := r.db.Exec(`
		UPDATE tasks SET auto_sync = ?, sync_cron = ?, updated_at = ? WHERE id = ?
	`, boolToInt(autoSync), syncCron, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update task schedule: %w", err)
	}
	return nil
}

func (r *TaskRepo) getTaskAccounts(taskID int64) ([]Account, error) {
	rows, err := r.db.Query(`
		SELECT a.id, a.remote_key, a.name, a.feed_url, a.max_download_count,
		       a.downloaded_count, a.auto_sync, a.sync_cron, a.last_sync_at,
		       a.sync_status, a.created_at, a.updated_at
		FROM accounts a
		JOIN task_accounts ta ON ta.account_id = a.id
		WHERE ta.task_id = ?
		ORDER BY a.id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task accounts: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var autoSync int
	var lastSyncAt sql.NullTime

	err := row.Scan(
		&task.ID, &task.Name, &task.Status, &task.Concurrency, &task.DownloadedVideos,
		&autoSync, &task.SyncCron, &lastSyncAt, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.AutoSync = autoSync != 0
	if lastSyncAt.Valid {
		task.LastSyncAt = &lastSyncAt.Time
	}

	return &task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
