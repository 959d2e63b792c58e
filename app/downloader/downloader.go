package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Everless321/dYm-web/app/bus"
	"github.com/Everless321/dYm-web/app/database"
	"github.com/Everless321/dYm-web/app/remote"
)

var _ TaskRunner = (*Downloader)(nil)

// Downloader turns a task into a bounded, cancellable download run: at most
// task.Concurrency account workers at a time, each running the fetch/download
// loop of worker.go, with progress streamed to the bus and final status
// written back to the store.
type Downloader struct {
	registry      *Registry
	taskRepo      database.TaskRepository
	accountRepo   database.AccountRepository
	postRepo      database.PostRepository
	settingRepo   database.SettingRepository
	clientFactory ClientFactory
	publisher     bus.Publisher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDownloader(registry *Registry, taskRepo database.TaskRepository,
	accountRepo database.AccountRepository, postRepo database.PostRepository,
	settingRepo database.SettingRepository, clientFactory ClientFactory,
	publisher bus.Publisher) *Downloader {

	ctx, cancel := context.WithCancel(context.Background())

	return &Downloader{
		registry:      registry,
		taskRepo:      taskRepo,
		accountRepo:   accountRepo,
		postRepo:      postRepo,
		settingRepo:   settingRepo,
		clientFactory: clientFactory,
		publisher:     publisher,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Stop cancels every active run and waits for in-flight work to drain.
func (d *Downloader) Stop() {
	d.cancel()
	d.wg.Wait()
}

// StartTask begins an asynchronous run for the task. It fails synchronously
// with ErrNotFound, ErrNoCredential or ErrAlreadyRunning before any work is
// admitted; completion is observed via task status and bus events.
func (d *Downloader) StartTask(taskID int64) error {
	task, err := d.taskRepo.GetTask(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}

	settings, credential, err := resolveRunSettings(d.settingRepo)
	if err != nil {
		return err
	}

	run, ok := d.registry.Begin(TaskKey(taskID), d.ctx)
	if !ok {
		return fmt.Errorf("task %d: %w", taskID, ErrAlreadyRunning)
	}

	if err := d.taskRepo.UpdateTaskStatus(taskID, database.TaskStatusRunning); err != nil {
		d.registry.End(run)
		return err
	}

	client := d.clientFactory(credential)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runTask(run, task, client, settings)
	}()

	return nil
}

// StopTask requests cancellation of the task's active run. Advisory: the run
// finishes its current batch and then winds down.
func (d *Downloader) StopTask(taskID int64) bool {
	return d.registry.Cancel(TaskKey(taskID))
}

// IsTaskRunning reports whether the task currently has an active run.
func (d *Downloader) IsTaskRunning(taskID int64) bool {
	return d.registry.Active(TaskKey(taskID))
}

func (d *Downloader) runTask(run *Run, task *database.TaskWithAccounts, client remote.Client, settings runSettings) {
	defer d.registry.End(run)

	accounts := task.Accounts

	// Historical floor: everything recorded before this run. The reported
	// grand total only grows from here.
	historical := 0
	for _, account := range accounts {
		historical += account.DownloadedCount
	}

	var runTotal atomic.Int64

	d.publisher.Publish(bus.Event{Channel: bus.ChannelDownloadProgress, Data: bus.DownloadProgress{
		TaskID:          task.ID,
		Status:          database.TaskStatusRunning,
		TotalAccounts:   len(accounts),
		Message:         "Initializing download...",
		DownloadedPosts: historical,
	}})

	concurrency := task.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	if concurrency > len(accounts) {
		concurrency = len(accounts)
	}

	queue := make(chan int, len(accounts))
	results := make([]int, len(accounts))
	var wg sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				if run.Cancelled() {
					continue
				}
				results[idx] = d.runTaskAccount(run, task, client, settings, idx, historical, &runTotal)
			}
		}()
	}

	for i := range accounts {
		queue <- i
	}
	close(queue)
	wg.Wait()

	total := 0
	for _, n := range results {
		total += n
	}

	status := database.TaskStatusCompleted
	message := fmt.Sprintf("Download finished, %d new items", total)
	if run.Cancelled() {
		status = database.TaskStatusFailed
		message = "Task cancelled"
	}

	if err := d.taskRepo.FinishTask(task.ID, status, total); err != nil {
		slog.Error("Failed to record task result", "task", task.ID, "error", err)
		status = database.TaskStatusFailed
		message = fmt.Sprintf("Download failed: %v", err)
	}

	d.publisher.Publish(bus.Event{Channel: bus.ChannelDownloadProgress, Data: bus.DownloadProgress{
		TaskID:              task.ID,
		Status:              status,
		CurrentAccountIndex: len(accounts),
		TotalAccounts:       len(accounts),
		Message:             message,
		DownloadedPosts:     historical + total,
	}})

	slog.Info("Task run finished", "task", task.ID, "status", status, "downloaded", total)
}

// runTaskAccount runs the download loop for one member account and returns
// its new-download count. Worker errors are contained here: they cost the
// account its downloads but never disturb sibling workers.
func (d *Downloader) runTaskAccount(run *Run, task *database.TaskWithAccounts, client remote.Client,
	settings runSettings, idx, historical int, runTotal *atomic.Int64) int {

	account := task.Accounts[idx]

	// Account keys are shared with standalone syncs; an account already
	// running elsewhere is skipped, not queued
	accountRun, ok := d.registry.BeginChild(AccountKey(account.ID), run)
	if !ok {
		slog.Warn("Account already syncing, skipping", "task", task.ID, "account", account.RemoteKey)
		d.publishAccountProgress(task, account, idx, accountProgress{
			message: fmt.Sprintf("%s is already syncing, skipped", account.Name),
		}, historical+int(runTotal.Load()))
		return 0
	}
	defer d.registry.End(accountRun)

	lastReported := 0
	report := func(p accountProgress) {
		// Fold this account's monotonic progress into the shared run total
		runTotal.Add(int64(p.downloaded - lastReported))
		lastReported = p.downloaded
		d.publishAccountProgress(task, account, idx, p, historical+int(runTotal.Load()))
	}

	downloaded, _, err := downloadAccountPosts(accountRun, client, d.postRepo, account, settings, report)

	runTotal.Add(int64(downloaded - lastReported))

	syncStatus := database.SyncStatusIdle
	if err != nil {
		syncStatus = database.SyncStatusError
		slog.Error("Account worker failed", "task", task.ID, "account", account.RemoteKey, "error", err)
		d.publishAccountProgress(task, account, idx, accountProgress{
			downloaded: downloaded,
			message:    fmt.Sprintf("%s failed: %v", account.Name, err),
		}, historical+int(runTotal.Load()))
	}

	if err := d.accountRepo.FinishSync(account.ID, syncStatus, downloaded); err != nil {
		slog.Error("Failed to record account sync result", "account", account.RemoteKey, "error", err)
	}

	return downloaded
}

func (d *Downloader) publishAccountProgress(task *database.TaskWithAccounts, account database.Account,
	idx int, p accountProgress, downloadedPosts int) {

	d.publisher.Publish(bus.Event{Channel: bus.ChannelDownloadProgress, Data: bus.DownloadProgress{
		TaskID:              task.ID,
		Status:              database.TaskStatusRunning,
		CurrentAccount:      account.Name,
		CurrentAccountIndex: idx + 1,
		TotalAccounts:       len(task.Accounts),
		CurrentVideo:        p.current,
		TotalVideos:         p.total,
		Message:             p.message,
		DownloadedPosts:     downloadedPosts,
	}})
}
