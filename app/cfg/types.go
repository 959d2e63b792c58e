package cfg

type Cfg struct {
	// Storage configuration
	DataDir string
	DBFile  string

	// Application configuration
	Port         string
	WatchlistDir string
	DownloadDir  string
	APIAccessKey string

	// Download behavior
	AccountConcurrency int
	VideoConcurrency   int
	MaxDownloadCount   int
	BatchDelaySeconds  int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
