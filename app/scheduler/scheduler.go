package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Everless321/dYm-web/app/bus"
	"github.com/Everless321/dYm-web/app/database"
	"github.com/Everless321/dYm-web/app/downloader"
)

// Subject kinds for log entries
const (
	SubjectTask    = "task"
	SubjectAccount = "account"
	SubjectSystem  = "system"
)

var _ SchedulerInterface = (*Scheduler)(nil)

// Scheduler maintains one recurring cron trigger per task or account that
// opted into auto-sync. A firing never stacks runs: when the registry already
// holds a run for the id, the firing is skipped and logged as a warning.
type Scheduler struct {
	cron      *cron.Cron
	runner    downloader.TaskRunner
	syncer    downloader.AccountSyncer
	publisher bus.Publisher
	log       *Log

	mu             sync.Mutex
	taskEntries    map[int64]cron.EntryID
	accountEntries map[int64]cron.EntryID
}

func NewScheduler(runner downloader.TaskRunner, syncer downloader.AccountSyncer,
	publisher bus.Publisher) *Scheduler {

	return &Scheduler{
		cron:           cron.New(),
		runner:         runner,
		syncer:         syncer,
		publisher:      publisher,
		log:            NewLog(DefaultLogSize),
		taskEntries:    make(map[int64]cron.EntryID),
		accountEntries: make(map[int64]cron.EntryID),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.appendLog("info", SubjectSystem, "", "Scheduler started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Scheduler stopped")
}

// ValidateExpression reports whether expr is a well-formed cron expression.
// Malformed input yields false, never an error.
func (s *Scheduler) ValidateExpression(expr string) bool {
	if expr == "" {
		return false
	}
	_, err := cron.ParseStandard(expr)
	return err == nil
}

// ScheduleTask registers or replaces the recurring trigger for the task.
func (s *Scheduler) ScheduleTask(task database.Task) error {
	if !s.ValidateExpression(task.SyncCron) {
		s.appendLog("error", SubjectTask, task.Name, fmt.Sprintf("Rejected invalid cron expression %q", task.SyncCron))
		return fmt.Errorf("invalid cron expression: %q", task.SyncCron)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-registration always replaces a previous trigger for the same id
	if entryID, exists := s.taskEntries[task.ID]; exists {
		s.cron.Remove(entryID)
		delete(s.taskEntries, task.ID)
	}

	taskID := task.ID
	taskName := task.Name
	entryID, err := s.cron.AddFunc(task.SyncCron, func() {
		s.fireTask(taskID, taskName)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron trigger: %w", err)
	}

	s.taskEntries[taskID] = entryID
	s.appendLog("info", SubjectTask, taskName, fmt.Sprintf("Scheduled with cron %q", task.SyncCron))

	return nil
}

// UnscheduleTask cancels and removes the task's trigger. No-op when absent.
func (s *Scheduler) UnscheduleTask(taskID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.taskEntries[taskID]; exists {
		s.cron.Remove(entryID)
		delete(s.taskEntries, taskID)
		s.appendLog("info", SubjectTask, fmt.Sprintf("task %d", taskID), "Schedule removed")
	}
}

// ScheduleAccount registers or replaces the recurring trigger for a
// standalone account sync.
func (s *Scheduler) ScheduleAccount(account database.Account) error {
	if !s.ValidateExpression(account.SyncCron) {
		s.appendLog("error", SubjectAccount, account.Name, fmt.Sprintf("Rejected invalid cron expression %q", account.SyncCron))
		return fmt.Errorf("invalid cron expression: %q", account.SyncCron)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.accountEntries[account.ID]; exists {
		s.cron.Remove(entryID)
		delete(s.accountEntries, account.ID)
	}

	accountID := account.ID
	accountName := account.Name
	entryID, err := s.cron.AddFunc(account.SyncCron, func() {
		s.fireAccount(accountID, accountName)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron trigger: %w", err)
	}

	s.accountEntries[accountID] = entryID
	s.appendLog("info", SubjectAccount, accountName, fmt.Sprintf("Scheduled with cron %q", account.SyncCron))

	return nil
}

// UnscheduleAccount cancels and removes the account's trigger. No-op when
// absent.
func (s *Scheduler) UnscheduleAccount(accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.accountEntries[accountID]; exists {
		s.cron.Remove(entryID)
		delete(s.accountEntries, accountID)
		s.appendLog("info", SubjectAccount, fmt.Sprintf("account %d", accountID), "Schedule removed")
	}
}

// Rebuild re-registers triggers from the persisted auto-sync fields of all
// tasks and accounts. Called once at startup.
func (s *Scheduler) Rebuild(taskRepo database.TaskRepository, accountRepo database.AccountRepository) error {
	tasks, err := taskRepo.GetAllTasks()
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	for _, task := range tasks {
		if !task.AutoSync || task.SyncCron == "" {
			continue
		}
		if err := s.ScheduleTask(task); err != nil {
			slog.Warn("Failed to schedule task at startup", "task", task.Name, "error", err)
		}
	}

	accounts, err := accountRepo.GetAllAccounts()
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	for _, account := range accounts {
		if !account.AutoSync || account.SyncCron == "" {
			continue
		}
		if err := s.ScheduleAccount(account); err != nil {
			slog.Warn("Failed to schedule account at startup", "account", account.RemoteKey, "error", err)
		}
	}

	return nil
}

// Logs returns a snapshot of the buffered log entries, oldest first.
func (s *Scheduler) Logs() []bus.SchedulerLog {
	return s.log.Entries()
}

// ClearLogs wipes the log buffer.
func (s *Scheduler) ClearLogs() {
	s.log.Clear()
	s.appendLog("info", SubjectSystem, "", "Log cleared")
}

func (s *Scheduler) fireTask(taskID int64, taskName string) {
	if s.runner.IsTaskRunning(taskID) {
		s.appendLog("warn", SubjectTask, taskName, "Run already active, skipping scheduled run")
		return
	}

	if err := s.runner.StartTask(taskID); err != nil {
		s.appendLog("error", SubjectTask, taskName, fmt.Sprintf("Scheduled run failed to start: %v", err))
		return
	}

	s.appendLog("info", SubjectTask, taskName, "Scheduled run started")
}

func (s *Scheduler) fireAccount(accountID int64, accountName string) {
	if s.syncer.IsSyncing(accountID) {
		s.appendLog("warn", SubjectAccount, accountName, "Sync already active, skipping scheduled sync")
		return
	}

	if err := s.syncer.StartSync(accountID); err != nil {
		s.appendLog("error", SubjectAccount, accountName, fmt.Sprintf("Scheduled sync failed to start: %v", err))
		return
	}

	s.appendLog("info", SubjectAccount, accountName, "Scheduled sync started")
}

func (s *Scheduler) appendLog(level, subject, targetName, message string) {
	entry := bus.SchedulerLog{
		Timestamp:  time.Now().UTC(),
		Level:      level,
		Message:    message,
		Subject:    subject,
		TargetName: targetName,
	}

	s.log.Append(entry)
	s.publisher.Publish(bus.Event{Channel: bus.ChannelSchedulerLog, Data: entry})

	switch level {
	case "error":
		slog.Error(message, "subject", subject, "target", targetName)
	case "warn":
		slog.Warn(message, "subject", subject, "target", targetName)
	default:
		slog.Debug(message, "subject", subject, "target", targetName)
	}
}
