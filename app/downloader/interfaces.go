package downloader

// TaskRunner is the task-level run contract consumed by the API layer and
// the cron scheduler.
type TaskRunner interface {
	StartTask(taskID int64) error
	StopTask(taskID int64) bool
	IsTaskRunning(taskID int64) bool
}

// AccountSyncer is the standalone account sync contract.
type AccountSyncer interface {
	StartSync(accountID int64) error
	StopSync(accountID int64) bool
	IsSyncing(accountID int64) bool
	AnySyncing() (int64, bool)
}
