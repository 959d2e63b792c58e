package watchlist

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultTaskConcurrency applies when a task entry omits concurrency.
const DefaultTaskConcurrency = 3

// Loader handles loading and validation of watchlist files
type Loader struct {
	dir string
}

// NewLoader creates a new watchlist loader
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadAll loads and merges every YAML file in the watchlist directory.
// A missing directory yields an empty watchlist, not an error.
func (l *Loader) LoadAll() (*Watchlist, error) {
	merged := &Watchlist{}

	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return merged, nil
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(l.dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		list, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(list); err != nil {
			return nil, fmt.Errorf("invalid watchlist %s: %w", file, err)
		}

		merged.Accounts = append(merged.Accounts, list.Accounts...)
		merged.Tasks = append(merged.Tasks, list.Tasks...)
		slog.Info("Loaded watchlist file", "file", file,
			"accounts", len(list.Accounts), "tasks", len(list.Tasks))
	}

	if err := l.validateMerged(merged); err != nil {
		return nil, err
	}

	return merged, nil
}

// loadFile loads a single YAML watchlist file
func (l *Loader) loadFile(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var list Watchlist
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.setDefaults(&list)

	return &list, nil
}

// setDefaults applies default values to watchlist entries
func (l *Loader) setDefaults(list *Watchlist) {
	for i := range list.Tasks {
		if list.Tasks[i].Concurrency == 0 {
			list.Tasks[i].Concurrency = DefaultTaskConcurrency
		}
	}
}

// validate validates a single watchlist file
func (l *Loader) validate(list *Watchlist) error {
	for i, account := range list.Accounts {
		if account.RemoteKey == "" {
			return fmt.Errorf("account at index %d: remote_key is required", i)
		}
		if account.FeedURL == "" {
			return fmt.Errorf("account %s: feed_url is required", account.RemoteKey)
		}
		if account.MaxItems < 0 {
			return fmt.Errorf("account %s: max_items must be non-negative", account.RemoteKey)
		}
	}

	for i, task := range list.Tasks {
		if task.Name == "" {
			return fmt.Errorf("task at index %d: name is required", i)
		}
		if task.Concurrency < 0 {
			return fmt.Errorf("task %s: concurrency must be non-negative", task.Name)
		}
		if len(task.Members) == 0 {
			return fmt.Errorf("task %s: at least one member is required", task.Name)
		}
	}

	return nil
}

// validateMerged checks cross-file constraints on the merged result: unique
// keys and member references that resolve to a declared account.
func (l *Loader) validateMerged(list *Watchlist) error {
	accountKeys := make(map[string]bool, len(list.Accounts))
	for _, account := range list.Accounts {
		if accountKeys[account.RemoteKey] {
			return fmt.Errorf("duplicate account remote_key: %s", account.RemoteKey)
		}
		accountKeys[account.RemoteKey] = true
	}

	taskNames := make(map[string]bool, len(list.Tasks))
	for _, task := range list.Tasks {
		if taskNames[task.Name] {
			return fmt.Errorf("duplicate task name: %s", task.Name)
		}
		taskNames[task.Name] = true

		for _, member := range task.Members {
			if !accountKeys[member] {
				return fmt.Errorf("task %s: unknown member account %s", task.Name, member)
			}
		}
	}

	return nil
}
