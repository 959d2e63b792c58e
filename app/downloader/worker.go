package downloader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Everless321/dYm-web/app/cfg"
	"github.com/Everless321/dYm-web/app/database"
	"github.com/Everless321/dYm-web/app/remote"
)

// skipMilestone batches skip notifications to avoid flooding the bus when an
// account has a long already-downloaded history
const skipMilestone = 20

// ClientFactory builds a remote client bound to the credential resolved at
// run start.
type ClientFactory func(credential string) remote.Client

// runSettings are resolved once when a run starts and stay fixed for its
// whole duration.
type runSettings struct {
	maxDownloadCount int           // global cap on new items per account (0 = unlimited)
	batchSize        int           // items materialized concurrently per batch
	batchDelay       time.Duration // idle time between batches
	downloadDir      string
}

// resolveRunSettings reads the effective run settings, letting persisted
// settings override the process configuration.
func resolveRunSettings(settingRepo database.SettingRepository) (runSettings, string, error) {
	c := cfg.Get()

	credential, err := settingRepo.Get(database.SettingRemoteCredential)
	if err != nil {
		return runSettings{}, "", err
	}
	if credential == "" {
		return runSettings{}, "", ErrNoCredential
	}

	settings := runSettings{
		maxDownloadCount: settingInt(settingRepo, database.SettingMaxDownloadCount, c.MaxDownloadCount),
		batchSize:        settingInt(settingRepo, database.SettingVideoConcurrency, c.VideoConcurrency),
		batchDelay:       time.Duration(settingInt(settingRepo, database.SettingBatchDelay, c.BatchDelaySeconds)) * time.Second,
		downloadDir:      c.DownloadDir,
	}

	if settings.batchSize < 1 {
		settings.batchSize = 1
	}
	if settings.batchDelay < 0 {
		settings.batchDelay = 0
	}

	if custom, err := settingRepo.Get(database.SettingDownloadPath); err == nil && custom != "" {
		settings.downloadDir = custom
	}
	if settings.downloadDir == "" {
		settings.downloadDir = filepath.Join(c.DataDir, "download")
	}

	return settings, credential, nil
}

func settingInt(settingRepo database.SettingRepository, key string, fallback int) int {
	value, err := settingRepo.Get(key)
	if err != nil || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer setting, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return parsed
}

// effectiveMaxItems resolves the per-run cap for one account: a positive
// account override wins over the global setting.
func effectiveMaxItems(account database.Account, global int) int {
	if account.MaxDownloadCount > 0 {
		return account.MaxDownloadCount
	}
	return global
}

// accountProgress is a progress snapshot for the account currently being
// worked on. The caller wraps it into its event shape.
type accountProgress struct {
	downloaded int // new downloads so far for this account
	skipped    int
	current    int // progress within the current batch scope
	total      int // size of the current batch scope
	message    string
}

type progressFunc func(p accountProgress)

// downloadAccountPosts runs the fetch/download loop of one account: enumerate
// remote content newest-first, skip already-recorded items, then materialize
// the pending items in fixed-size batches with an idle delay between batches.
// Cancellation is honored before each batch and before each item; admitted
// items always finish. Returns the number of newly materialized items and the
// skip count.
func downloadAccountPosts(run *Run, client remote.Client, postRepo database.PostRepository,
	account database.Account, settings runSettings, report progressFunc) (int, int, error) {

	maxItems := effectiveMaxItems(account, settings.maxDownloadCount)
	accountDir := filepath.Join(settings.downloadDir, account.RemoteKey)

	report(accountProgress{
		message: fmt.Sprintf("Fetching content list for %s...", account.Name),
	})

	// Listing runs under the base context, not the run context: cancellation
	// is only honored at batch/item boundaries
	posts, err := client.ListPosts(run.Base(), account, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list content for %s: %w", account.RemoteKey, err)
	}

	var pending []remote.RemotePost
	skipped := 0

	for _, post := range posts {
		if run.Cancelled() {
			break
		}
		if post.RemoteID == "" {
			continue
		}

		exists, err := postRepo.PostExists(post.RemoteID)
		if err != nil {
			return 0, skipped, fmt.Errorf("failed to check existing post: %w", err)
		}
		if exists {
			skipped++
			if skipped%skipMilestone == 0 {
				report(accountProgress{
					skipped: skipped,
					message: fmt.Sprintf("Skipped %d already downloaded items...", skipped),
				})
			}
			continue
		}

		pending = append(pending, post)
		if maxItems > 0 && len(pending) >= maxItems {
			break
		}
	}

	if len(pending) == 0 {
		report(accountProgress{
			skipped: skipped,
			message: fmt.Sprintf("%s has no new content, skipped %d already downloaded", account.Name, skipped),
		})
		return 0, skipped, nil
	}

	total := len(pending)
	batchSize := settings.batchSize
	totalBatches := (total + batchSize - 1) / batchSize
	downloaded := 0

	report(accountProgress{
		skipped: skipped,
		total:   total,
		message: fmt.Sprintf("Starting download of %d items (%d per batch)...", total, batchSize),
	})

	for i := 0; i < total; i += batchSize {
		if run.Cancelled() {
			break
		}

		end := i + batchSize
		if end > total {
			end = total
		}
		batch := pending[i:end]
		batchNum := i/batchSize + 1

		report(accountProgress{
			downloaded: downloaded,
			skipped:    skipped,
			current:    downloaded,
			total:      total,
			message:    fmt.Sprintf("Downloading batch %d/%d (%d items)...", batchNum, totalBatches, len(batch)),
		})

		downloaded += materializeBatch(run, client, postRepo, account, batch, accountDir)

		report(accountProgress{
			downloaded: downloaded,
			skipped:    skipped,
			current:    downloaded,
			total:      total,
			message:    fmt.Sprintf("Completed %d/%d", downloaded, total),
		})

		if end < total && !run.Cancelled() && settings.batchDelay > 0 {
			report(accountProgress{
				downloaded: downloaded,
				skipped:    skipped,
				current:    downloaded,
				total:      total,
				message:    fmt.Sprintf("Waiting %s before next batch...", settings.batchDelay),
			})
			select {
			case <-time.After(settings.batchDelay):
			case <-run.Done():
			}
		}
	}

	summary := fmt.Sprintf("%s finished, %d new downloads", account.Name, downloaded)
	if skipped > 0 {
		summary += fmt.Sprintf(", skipped %d already downloaded", skipped)
	}
	report(accountProgress{
		downloaded: downloaded,
		skipped:    skipped,
		current:    downloaded,
		total:      downloaded,
		message:    summary,
	})

	return downloaded, skipped, nil
}

// materializeBatch downloads every item of the batch concurrently and records
// a post row for each success. A failed item is logged and counted as not
// downloaded; it never aborts the batch.
func materializeBatch(run *Run, client remote.Client, postRepo database.PostRepository,
	account database.Account, batch []remote.RemotePost, accountDir string) int {

	results := make([]bool, len(batch))
	var wg sync.WaitGroup

	for i, post := range batch {
		if run.Cancelled() {
			break
		}

		wg.Add(1)
		go func(i int, post remote.RemotePost) {
			defer wg.Done()

			materialized, err := client.Download(run.Base(), post, accountDir)
			if err != nil {
				slog.Error("Failed to download post", "account", account.RemoteKey, "post", post.RemoteID, "error", err)
				return
			}

			// Row written only after the media landed on disk, so a crash
			// mid-download cannot leave a record without a file
			err = postRepo.CreatePost(database.Post{
				RemoteID:    post.RemoteID,
				AccountID:   account.ID,
				Kind:        post.Kind,
				Caption:     post.Caption,
				MediaPath:   materialized.MediaPath,
				CoverPath:   materialized.CoverPath,
				PublishedAt: post.PublishedAt,
			})
			if err != nil {
				slog.Error("Failed to record post", "account", account.RemoteKey, "post", post.RemoteID, "error", err)
				return
			}

			results[i] = true
		}(i, post)
	}

	wg.Wait()

	downloaded := 0
	for _, ok := range results {
		if ok {
			downloaded++
		}
	}
	return downloaded
}
