package database

import (
	"time"
)

// Task status values, mutated only by the orchestrator once a run starts
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Account sync status values
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// Post kinds
const (
	PostKindVideo   = "video"
	PostKindGallery = "gallery"
)

type Task struct {
	ID               int64
	Name             string
	Status           string
	Concurrency      int
	DownloadedVideos int
	AutoSync         bool
	SyncCron         string
	LastSyncAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type TaskWithAccounts struct {
	Task
	Accounts []Account
}

type Account struct {
	ID               int64
	RemoteKey        string // Stable remote identity key of the creator
	Name             string
	FeedURL          string
	MaxDownloadCount int // Per-account cap on new items per run (0 = use global)
	DownloadedCount  int
	AutoSync         bool
	SyncCron         string
	LastSyncAt       *time.Time
	SyncStatus       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Post struct {
	ID           int64
	RemoteID     string // Stable remote content id, globally unique (dedup key)
	AccountID    int64
	Kind         string
	Caption      string
	MediaPath    string
	CoverPath    string
	PublishedAt  *time.Time
	DownloadedAt time.Time
}
