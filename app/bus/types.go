package bus

import "time"

// Channel identifies the kind of a published event
type Channel string

const (
	ChannelSyncProgress     Channel = "sync:progress"
	ChannelDownloadProgress Channel = "download:progress"
	ChannelAnalysisProgress Channel = "analysis:progress"
	ChannelSchedulerLog     Channel = "scheduler:log"
)

// Event is the tagged union carried by the bus. Data is one of the payload
// structs below, selected by Channel.
type Event struct {
	Channel Channel `json:"channel"`
	Data    any     `json:"data"`
}

// SyncProgress reports the state of a standalone account sync
type SyncProgress struct {
	AccountID       int64  `json:"accountId"`
	Status          string `json:"status"` // syncing, completed, failed, stopped
	Name            string `json:"name"`
	CurrentVideo    int    `json:"currentVideo"`
	TotalVideos     int    `json:"totalVideos"`
	DownloadedCount int    `json:"downloadedCount"`
	SkippedCount    int    `json:"skippedCount"`
	Message         string `json:"message"`
}

// DownloadProgress reports the state of a task-level download run
type DownloadProgress struct {
	TaskID              int64  `json:"taskId"`
	Status              string `json:"status"` // running, completed, failed
	CurrentAccount      string `json:"currentAccount"`
	CurrentAccountIndex int    `json:"currentAccountIndex"`
	TotalAccounts       int    `json:"totalAccounts"`
	CurrentVideo        int    `json:"currentVideo"`
	TotalVideos         int    `json:"totalVideos"`
	Message             string `json:"message"`
	DownloadedPosts     int    `json:"downloadedPosts"`
}

// AnalysisProgress reports the state of a content analysis pass. Analysis
// itself runs outside this service; the event shape is carried so observers
// see one multiplexed stream.
type AnalysisProgress struct {
	Status        string `json:"status"` // running, completed, failed, stopped
	CurrentPost   string `json:"currentPost"`
	CurrentIndex  int    `json:"currentIndex"`
	TotalPosts    int    `json:"totalPosts"`
	AnalyzedCount int    `json:"analyzedCount"`
	FailedCount   int    `json:"failedCount"`
	Message       string `json:"message"`
}

// SchedulerLog is a single scheduler log line, also retained in the
// scheduler's bounded buffer
type SchedulerLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"` // info, warn, error
	Message    string    `json:"message"`
	Subject    string    `json:"subject"` // account, task, system
	TargetName string    `json:"targetName,omitempty"`
}
