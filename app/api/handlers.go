package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Everless321/dYm-web/app/database"
	"github.com/Everless321/dYm-web/app/downloader"
	"github.com/Everless321/dYm-web/app/scheduler"
)

func NewHandler(taskRepo database.TaskRepository, accountRepo database.AccountRepository,
	postRepo database.PostRepository, runner downloader.TaskRunner,
	syncer downloader.AccountSyncer, sched scheduler.SchedulerInterface,
	events EventSource) *Handler {
	return &Handler{
		taskRepo:    taskRepo,
		accountRepo: accountRepo,
		postRepo:    postRepo,
		runner:      runner,
		syncer:      syncer,
		scheduler:   sched,
		events:      events,
	}
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Success: false, Error: message})
}

// startError maps core precondition failures to HTTP status codes.
func startError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, downloader.ErrNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, downloader.ErrAlreadyRunning):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, downloader.ErrNoCredential):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Start request failed", "error", err)
		respondError(c, http.StatusInternalServerError, err.Error())
	}
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid id parameter")
		return 0, false
	}
	return id, true
}

func (h *Handler) RunTask(c *gin.Context) {
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.runner.StartTask(taskID); err != nil {
		startError(c, err)
		return
	}

	respondOK(c, gin.H{"taskId": taskID, "status": database.TaskStatusRunning})
}

func (h *Handler) StopTask(c *gin.Context) {
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	stopped := h.runner.StopTask(taskID)
	respondOK(c, gin.H{"taskId": taskID, "stopped": stopped})
}

func (h *Handler) GetTaskStatus(c *gin.Context) {
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	task, err := h.taskRepo.GetTask(taskID)
	if err != nil {
		slog.Error("Database error", "operation", "get_task", "task", taskID, "error", err)
		respondError(c, http.StatusInternalServerError, "database error")
		return
	}
	if task == nil {
		respondError(c, http.StatusNotFound, "task not found")
		return
	}

	respondOK(c, gin.H{
		"taskId":           task.ID,
		"name":             task.Name,
		"status":           task.Status,
		"running":          h.runner.IsTaskRunning(taskID),
		"concurrency":      task.Concurrency,
		"downloadedVideos": task.DownloadedVideos,
		"accounts":         len(task.Accounts),
		"autoSync":         task.AutoSync,
		"syncCron":         task.SyncCron,
		"lastSyncAt":       task.LastSyncAt,
	})
}

func (h *Handler) StartSync(c *gin.Context) {
	accountID, ok := idParam(c, "accountId")
	if !ok {
		return
	}

	if err := h.syncer.StartSync(accountID); err != nil {
		startError(c, err)
		return
	}

	respondOK(c, gin.H{"accountId": accountID, "status": database.SyncStatusSyncing})
}

func (h *Handler) StopSync(c *gin.Context) {
	accountID, ok := idParam(c, "accountId")
	if !ok {
		return
	}

	stopped := h.syncer.StopSync(accountID)
	respondOK(c, gin.H{"accountId": accountID, "stopped": stopped})
}

func (h *Handler) GetSyncStatus(c *gin.Context) {
	accountID, ok := idParam(c, "accountId")
	if !ok {
		return
	}

	account, err := h.accountRepo.GetAccount(accountID)
	if err != nil {
		slog.Error("Database error", "operation", "get_account", "account", accountID, "error", err)
		respondError(c, http.StatusInternalServerError, "database error")
		return
	}
	if account == nil {
		respondError(c, http.StatusNotFound, "account not found")
		return
	}

	respondOK(c, gin.H{
		"accountId":       account.ID,
		"remoteKey":       account.RemoteKey,
		"name":            account.Name,
		"syncStatus":      account.SyncStatus,
		"syncing":         h.syncer.IsSyncing(accountID),
		"downloadedCount": account.DownloadedCount,
		"autoSync":        account.AutoSync,
		"syncCron":        account.SyncCron,
		"lastSyncAt":      account.LastSyncAt,
	})
}

func (h *Handler) GetActiveSync(c *gin.Context) {
	accountID, active := h.syncer.AnySyncing()
	if !active {
		respondOK(c, gin.H{"active": false})
		return
	}

	respondOK(c, gin.H{"active": true, "accountId": accountID})
}

func (h *Handler) ValidateCron(c *gin.Context) {
	var req ValidateCronRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	respondOK(c, gin.H{
		"expression": req.Expression,
		"valid":      h.scheduler.ValidateExpression(req.Expression),
	})
}

func (h *Handler) ScheduleTask(c *gin.Context) {
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.AutoSync && !h.scheduler.ValidateExpression(req.SyncCron) {
		respondError(c, http.StatusBadRequest, "invalid cron expression")
		return
	}

	task, err := h.taskRepo.GetTask(taskID)
	if err != nil {
		slog.Error("Database error", "operation", "get_task", "task", taskID, "error", err)
		respondError(c, http.StatusInternalServerError, "database error")
		return
	}
	if task == nil {
		respondError(c, http.StatusNotFound, "task not found")
		return
	}

	if err := h.taskRepo.UpdateTaskSchedule(taskID, req.AutoSync, req.SyncCron); err != nil {
		slog.Error("Database error", "operation", "update_task_schedule", "task", taskID, "error", err)
		respondError(c, http.StatusInternalServerError, "database error")
		return
	}

	if req.AutoSync {
		scheduled := task.Task
		scheduled.AutoSync = true
		scheduled.SyncCron = req.SyncCron
		if err := h.scheduler.ScheduleTask(scheduled); err != nil {
			respondError(c, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		h.scheduler.UnscheduleTask(taskID)
	}

	respondOK(c, gin.H{"taskId": taskID, "autoSync": req.AutoSync, "syncCron": req.SyncCron})
}

func (h *Handler) ScheduleAccount(c *gin.Context) {
	accountID, ok := idParam(c, "accountId")
	if !ok {
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.AutoSync && !h.scheduler.ValidateExpression(req.SyncCron) {
		respondError(c, http.StatusBadRequest, "invalid cron expression")
		return
	}

	account, err := h.accountRepo.GetAccount(accountID)
	if err != nil {
		slog.Error("Database error", "operation", "get_account", "account", accountID, "error", err)
		respondError(c, http.StatusInternalServerError, "database error")
		return
	}
	if account == nil {
		respondError(c, http.StatusNotFound, "account not found")
		return
	}

	if err := h.accountRepo.UpdateAccountSchedule(accountID, req.AutoSync, req.SyncCron); err != nil {
		slog.Error("Database error", "operation", "update_account_schedule", "account", accountID, "error", err)
		respondError(c, http.StatusInternalServerError, "database error")
		return
	}

	if req.AutoSync {
		scheduled := *account
		scheduled.AutoSync = true
		scheduled.SyncCron = req.SyncCron
		if err := h.scheduler.ScheduleAccount(scheduled); err != nil {
			respondError(c, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		h.scheduler.UnscheduleAccount(accountID)
	}

	respondOK(c, gin.H{"accountId": accountID, "autoSync": req.AutoSync, "syncCron": req.SyncCron})
}

func (h *Handler) GetSchedulerLogs(c *gin.Context) {
	logs := h.scheduler.Logs()
	respondOK(c, gin.H{"logs": logs, "total": len(logs)})
}

func (h *Handler) ClearSchedulerLogs(c *gin.Context) {
	h.scheduler.ClearLogs()
	respondOK(c, gin.H{"cleared": true})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if taskCount, err := h.taskRepo.GetTaskCount(); err == nil {
		health["tasks"] = taskCount
	}
	if postCount, err := h.postRepo.GetPostCount(); err == nil {
		health["posts"] = postCount
	}

	c.JSON(http.StatusOK, health)
}
