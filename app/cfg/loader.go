package cfg

import (
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

// orDefault mirrors cmp.Or for two strings (cmp.Or requires Go 1.22).
func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func GetVersion() string {
	return orDefault(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DataDir string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for the database and downloaded media"`
	DBFile  string `long:"db-file" env:"DB_FILE" default:"dym.db" description:"SQLite database filename inside the data directory"`

	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WatchlistDir string `long:"watchlist-dir" env:"WATCHLIST_DIR" default:"./watchlist" description:"Directory containing watchlist YAML files"`
	DownloadDir  string `long:"download-dir" env:"DOWNLOAD_DIR" description:"Override for the media download directory (defaults to <data-dir>/download)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Download behavior
	AccountConcurrency int `long:"account-concurrency" env:"ACCOUNT_CONCURRENCY" default:"3" description:"Default number of accounts fetched concurrently per task run"`
	VideoConcurrency   int `long:"video-concurrency" env:"VIDEO_CONCURRENCY" default:"3" description:"Number of items downloaded concurrently within a batch"`
	MaxDownloadCount   int `long:"max-download-count" env:"MAX_DOWNLOAD_COUNT" default:"0" description:"Global cap on new items per account per run (0 = unlimited)"`
	BatchDelaySeconds  int `long:"batch-delay" env:"BATCH_DELAY" default:"3" description:"Delay between download batches in seconds"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"dYm-web/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DataDir:            raw.DataDir,
		DBFile:             raw.DBFile,
		Port:               raw.Port,
		WatchlistDir:       raw.WatchlistDir,
		DownloadDir:        raw.DownloadDir,
		APIAccessKey:       raw.APIAccessKey,
		AccountConcurrency: raw.AccountConcurrency,
		VideoConcurrency:   raw.VideoConcurrency,
		MaxDownloadCount:   raw.MaxDownloadCount,
		BatchDelaySeconds:  raw.BatchDelaySeconds,
		UserAgent:          raw.UserAgent,
		Timezone:           raw.Timezone,
		Debug:              raw.Debug,
		Version:            GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Cfg) {
	globalCfg = c
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
