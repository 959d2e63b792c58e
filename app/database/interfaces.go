package database

type TaskRepository interface {
	GetTask(id int64) (*TaskWithAccounts, error)
	GetTaskByName(name string) (*Task, error)
	GetAllTasks() ([]Task, error)
	GetTaskCount() (int, error)

	CreateTask(name string, concurrency int, autoSync bool, syncCron string) (int64, error)
	SetTaskAccounts(taskID int64, accountIDs []int64) error
	UpdateTaskStatus(id int64, status string) error
	FinishTask(id int64, status string, downloadedVideos int) error
	UpdateTaskSchedule(id int64, autoSync bool, syncCron string) error
}

type AccountRepository interface {
	GetAccount(id int64) (*Account, error)
	GetAccountByRemoteKey(remoteKey string) (*Account, error)
	GetAllAccounts() ([]Account, error)

	UpsertAccount(remoteKey, name, feedURL string, maxDownloadCount int, autoSync bool, syncCron string) (int64, error)
	UpdateSyncStatus(id int64, status string) error
	FinishSync(id int64, status string, newDownloads int) error
	UpdateAccountSchedule(id int64, autoSync bool, syncCron string) error
}

type PostRepository interface {
	PostExists(remoteID string) (bool, error)
	CreatePost(post Post) error
	GetPostCount() (int, error)
	GetPostCountByAccount(accountID int64) (int, error)
}

type SettingRepository interface {
	Get(key string) (string, error)
	Set(key, value string) error
}
