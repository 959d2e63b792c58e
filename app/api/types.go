package api

import (
	"github.com/Everless321/dYm-web/app/bus"
	"github.com/Everless321/dYm-web/app/database"
	"github.com/Everless321/dYm-web/app/downloader"
	"github.com/Everless321/dYm-web/app/scheduler"
)

// EventSource is the subscribe side of the progress bus.
type EventSource interface {
	Subscribe() (<-chan bus.Event, func())
}

// Handler holds the dependencies of all HTTP handlers
type Handler struct {
	taskRepo    database.TaskRepository
	accountRepo database.AccountRepository
	postRepo    database.PostRepository
	runner      downloader.TaskRunner
	syncer      downloader.AccountSyncer
	scheduler   scheduler.SchedulerInterface
	events      EventSource
}

// Response is the JSON envelope of every API endpoint
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ScheduleRequest updates the recurring schedule of a task or account
type ScheduleRequest struct {
	AutoSync bool   `json:"autoSync"`
	SyncCron string `json:"syncCron"`
}

// ValidateCronRequest carries a cron expression to check
type ValidateCronRequest struct {
	Expression string `json:"expression"`
}
