package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Everless321/dYm-web/app/api"
	"github.com/Everless321/dYm-web/app/bus"
	"github.com/Everless321/dYm-web/app/cfg"
	"github.com/Everless321/dYm-web/app/database"
	"github.com/Everless321/dYm-web/app/downloader"
	"github.com/Everless321/dYm-web/app/remote"
	"github.com/Everless321/dYm-web/app/scheduler"
	"github.com/Everless321/dYm-web/app/watchlist"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting dYm-web server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DataDir, appCfg.DBFile)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "migration_version", version, "dirty", dirty)

	taskRepo := database.NewTaskRepository(db)
	accountRepo := database.NewAccountRepository(db)
	postRepo := database.NewPostRepository(db)
	settingRepo := database.NewSettingRepository(db)

	// Reconcile the declarative watchlist into the store
	loader := watchlist.NewLoader(appCfg.WatchlistDir)
	list, err := loader.LoadAll()
	if err != nil {
		slog.Error("Failed to load watchlist", "error", err)
		os.Exit(1)
	}
	if err := reconcileWatchlist(list, taskRepo, accountRepo); err != nil {
		slog.Error("Failed to reconcile watchlist", "error", err)
		os.Exit(1)
	}

	if appCfg.DownloadDir == "" {
		appCfg.DownloadDir = filepath.Join(appCfg.DataDir, "download")
	}
	if err := os.MkdirAll(appCfg.DownloadDir, 0755); err != nil {
		slog.Error("Failed to create download directory", "dir", appCfg.DownloadDir, "error", err)
		os.Exit(1)
	}

	eventBus := bus.New()
	registry := downloader.NewRegistry()

	clientFactory := func(credential string) remote.Client {
		return remote.NewFeedClient(credential, appCfg.UserAgent)
	}

	taskDownloader := downloader.NewDownloader(registry, taskRepo, accountRepo,
		postRepo, settingRepo, clientFactory, eventBus)
	accountSyncer := downloader.NewSyncer(registry, accountRepo, postRepo,
		settingRepo, clientFactory, eventBus)

	cronScheduler := scheduler.NewScheduler(taskDownloader, accountSyncer, eventBus)
	if err := cronScheduler.Rebuild(taskRepo, accountRepo); err != nil {
		slog.Error("Failed to rebuild schedules", "error", err)
		os.Exit(1)
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	handler := api.NewHandler(taskRepo, accountRepo, postRepo,
		taskDownloader, accountSyncer, cronScheduler, eventBus)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:        ":" + appCfg.Port,
		Handler:     server,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /events holds long-lived SSE connections
		IdleTimeout: 120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Cancel active runs and wait for in-flight downloads to drain
	taskDownloader.Stop()
	accountSyncer.Stop()

	slog.Info("Shutdown complete")
}

// reconcileWatchlist upserts declared accounts and tasks into the store, the
// same way feeds are registered at startup from their config files.
func reconcileWatchlist(list *watchlist.Watchlist,
	taskRepo database.TaskRepository, accountRepo database.AccountRepository) error {

	accountIDs := make(map[string]int64, len(list.Accounts))
	for _, entry := range list.Accounts {
		id, err := accountRepo.UpsertAccount(entry.RemoteKey, entry.Name,
			entry.FeedURL, entry.MaxItems, entry.AutoSync, entry.SyncCron)
		if err != nil {
			return fmt.Errorf("failed to register account %s: %w", entry.RemoteKey, err)
		}
		accountIDs[entry.RemoteKey] = id
		slog.Info("Registered account", "remote_key", entry.RemoteKey, "id", id)
	}

	for _, entry := range list.Tasks {
		task, err := taskRepo.GetTaskByName(entry.Name)
		if err != nil {
			return fmt.Errorf("failed to look up task %s: %w", entry.Name, err)
		}

		var taskID int64
		if task == nil {
			taskID, err = taskRepo.CreateTask(entry.Name, entry.Concurrency, entry.AutoSync, entry.SyncCron)
			if err != nil {
				return fmt.Errorf("failed to create task %s: %w", entry.Name, err)
			}
			slog.Info("Created task", "name", entry.Name, "id", taskID)
		} else {
			taskID = task.ID
			if err := taskRepo.UpdateTaskSchedule(taskID, entry.AutoSync, entry.SyncCron); err != nil {
				return fmt.Errorf("failed to update task %s: %w", entry.Name, err)
			}
		}

		memberIDs := make([]int64, 0, len(entry.Members))
		for _, member := range entry.Members {
			id, ok := accountIDs[member]
			if !ok {
				// Member declared in an earlier run; resolve from the store
				account, err := accountRepo.GetAccountByRemoteKey(member)
				if err != nil || account == nil {
					return fmt.Errorf("task %s: unknown member account %s", entry.Name, member)
				}
				id = account.ID
			}
			memberIDs = append(memberIDs, id)
		}

		if err := taskRepo.SetTaskAccounts(taskID, memberIDs); err != nil {
			return fmt.Errorf("failed to set members of task %s: %w", entry.Name, err)
		}
	}

	if len(list.Accounts) > 0 || len(list.Tasks) > 0 {
		slog.Info("Watchlist reconciled", "accounts", len(list.Accounts), "tasks", len(list.Tasks))
	}

	return nil
}
