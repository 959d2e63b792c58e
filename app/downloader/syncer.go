package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Everless321/dYm-web/app/bus"
	"github.com/Everless321/dYm-web/app/database"
	"github.com/Everless321/dYm-web/app/remote"
)

var _ AccountSyncer = (*Syncer)(nil)

// Syncer runs the fetch/download loop for a single account outside any task.
// It shares the registry's account key space with task runs, so the same
// account never syncs twice at once regardless of the entry point.
type Syncer struct {
	registry      *Registry
	accountRepo   database.AccountRepository
	postRepo      database.PostRepository
	settingRepo   database.SettingRepository
	clientFactory ClientFactory
	publisher     bus.Publisher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSyncer(registry *Registry, accountRepo database.AccountRepository,
	postRepo database.PostRepository, settingRepo database.SettingRepository,
	clientFactory ClientFactory, publisher bus.Publisher) *Syncer {

	ctx, cancel := context.WithCancel(context.Background())

	return &Syncer{
		registry:      registry,
		accountRepo:   accountRepo,
		postRepo:      postRepo,
		settingRepo:   settingRepo,
		clientFactory: clientFactory,
		publisher:     publisher,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Stop cancels every active sync and waits for in-flight work to drain.
func (s *Syncer) Stop() {
	s.cancel()
	s.wg.Wait()
}

// StartSync begins an asynchronous sync for the account, with the same
// synchronous precondition failures as a task run.
func (s *Syncer) StartSync(accountID int64) error {
	account, err := s.accountRepo.GetAccount(accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}

	settings, credential, err := resolveRunSettings(s.settingRepo)
	if err != nil {
		return err
	}

	run, ok := s.registry.Begin(AccountKey(accountID), s.ctx)
	if !ok {
		return fmt.Errorf("account %d: %w", accountID, ErrAlreadyRunning)
	}

	if err := s.accountRepo.UpdateSyncStatus(accountID, database.SyncStatusSyncing); err != nil {
		s.registry.End(run)
		return err
	}

	client := s.clientFactory(credential)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync(run, *account, client, settings)
	}()

	return nil
}

// StopSync requests cancellation of the account's active sync.
func (s *Syncer) StopSync(accountID int64) bool {
	return s.registry.Cancel(AccountKey(accountID))
}

// IsSyncing reports whether the account has an active run, started by either
// entry point.
func (s *Syncer) IsSyncing(accountID int64) bool {
	return s.registry.Active(AccountKey(accountID))
}

// AnySyncing returns one currently syncing account id, if any.
func (s *Syncer) AnySyncing() (int64, bool) {
	ids := s.registry.ActiveAccountIDs()
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

func (s *Syncer) runSync(run *Run, account database.Account, client remote.Client, settings runSettings) {
	defer s.registry.End(run)

	s.publishProgress(account, accountProgress{
		message: fmt.Sprintf("Syncing %s...", account.Name),
	}, "syncing")

	report := func(p accountProgress) {
		s.publishProgress(account, p, "syncing")
	}

	downloaded, skipped, err := downloadAccountPosts(run, client, s.postRepo, account, settings, report)

	switch {
	case err != nil:
		slog.Error("Account sync failed", "account", account.RemoteKey, "error", err)
		if ferr := s.accountRepo.FinishSync(account.ID, database.SyncStatusError, downloaded); ferr != nil {
			slog.Error("Failed to record sync result", "account", account.RemoteKey, "error", ferr)
		}
		s.publishProgress(account, accountProgress{
			downloaded: downloaded,
			skipped:    skipped,
			message:    fmt.Sprintf("Sync failed: %v", err),
		}, "failed")

	case run.Cancelled():
		if ferr := s.accountRepo.FinishSync(account.ID, database.SyncStatusIdle, downloaded); ferr != nil {
			slog.Error("Failed to record sync result", "account", account.RemoteKey, "error", ferr)
		}
		s.publishProgress(account, accountProgress{
			downloaded: downloaded,
			skipped:    skipped,
			message:    "Sync stopped",
		}, "stopped")

	default:
		if ferr := s.accountRepo.FinishSync(account.ID, database.SyncStatusIdle, downloaded); ferr != nil {
			slog.Error("Failed to record sync result", "account", account.RemoteKey, "error", ferr)
		}
		s.publishProgress(account, accountProgress{
			downloaded: downloaded,
			skipped:    skipped,
			current:    downloaded,
			total:      downloaded,
			message:    fmt.Sprintf("%s synced, %d new downloads, %d skipped", account.Name, downloaded, skipped),
		}, "completed")
	}

	slog.Info("Account sync finished", "account", account.RemoteKey, "downloaded", downloaded, "skipped", skipped)
}

func (s *Syncer) publishProgress(account database.Account, p accountProgress, status string) {
	s.publisher.Publish(bus.Event{Channel: bus.ChannelSyncProgress, Data: bus.SyncProgress{
		AccountID:       account.ID,
		Status:          status,
		Name:            account.Name,
		CurrentVideo:    p.current,
		TotalVideos:     p.total,
		DownloadedCount: p.downloaded,
		SkippedCount:    p.skipped,
		Message:         p.message,
	}})
}
