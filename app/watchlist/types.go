package watchlist

// Watchlist is the merged content of all YAML files in the watchlist
// directory.
type Watchlist struct {
	Accounts []AccountEntry `yaml:"accounts"`
	Tasks    []TaskEntry    `yaml:"tasks"`
}

// AccountEntry declares a creator account to track
type AccountEntry struct {
	RemoteKey string `yaml:"remote_key"`
	Name      string `yaml:"name"`
	FeedURL   string `yaml:"feed_url"`
	MaxItems  int    `yaml:"max_items"` // 0 = use global setting
	AutoSync  bool   `yaml:"auto_sync"`
	SyncCron  string `yaml:"sync_cron"`
}

// TaskEntry declares a named download task over a set of accounts
type TaskEntry struct {
	Name        string   `yaml:"name"`
	Concurrency int      `yaml:"concurrency"`
	Members     []string `yaml:"members"` // account remote keys
	AutoSync    bool     `yaml:"auto_sync"`
	SyncCron    string   `yaml:"sync_cron"`
}
