package downloader

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Everless321/dYm-web/app/bus"
	"github.com/Everless321/dYm-web/app/database"
	"github.com/Everless321/dYm-web/app/remote"
)

// MockTaskRepository implements a simple mock for testing
type MockTaskRepository struct {
	mu       sync.Mutex
	tasks    map[int64]*database.TaskWithAccounts
	statuses []string
	finished []finishedTask
}

type finishedTask struct {
	status     string
	downloaded int
}

var _ database.TaskRepository = (*MockTaskRepository)(nil)

func NewMockTaskRepository() *MockTaskRepository {
	return &MockTaskRepository{tasks: make(map[int64]*database.TaskWithAccounts)}
}

func (m *MockTaskRepository) GetTask(id int64) (*database.TaskWithAccounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id], nil
}

func (m *MockTaskRepository) GetTaskByName(name string) (*database.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if task.Name == name {
			t := task.Task
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MockTaskRepository) GetAllTasks() ([]database.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tasks []database.Task
	for _, task := range m.tasks {
		tasks = append(tasks, task.Task)
	}
	return tasks, nil
}

func (m *MockTaskRepository) GetTaskCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks), nil
}

func (m *MockTaskRepository) CreateTask(name string, concurrency int, autoSync bool, syncCron string) (int64, error) {
	return 0, nil
}

func (m *MockTaskRepository) SetTaskAccounts(taskID int64, accountIDs []int64) error {
	return nil
}

func (m *MockTaskRepository) UpdateTaskStatus(id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	if task, ok := m.tasks[id]; ok {
		task.Status = status
	}
	return nil
}

func (m *MockTaskRepository) FinishTask(id int64, status string, downloadedVideos int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, finishedTask{status, downloadedVideos})
	if task, ok := m.tasks[id]; ok {
		task.Status = status
	}
	return nil
}

func (m *MockTaskRepository) UpdateTaskSchedule(id int64, autoSync bool, syncCron string) error {
	return nil
}

func (m *MockTaskRepository) Finished() []finishedTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]finishedTask(nil), m.finished...)
}

// MockAccountRepository implements a simple mock for testing
type MockAccountRepository struct {
	mu       sync.Mutex
	accounts map[int64]*database.Account
	statuses map[int64][]string
	syncDone map[int64]int
}

var _ database.AccountRepository = (*MockAccountRepository)(nil)

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[int64]*database.Account),
		statuses: make(map[int64][]string),
		syncDone: make(map[int64]int),
	}
}

func (m *MockAccountRepository) GetAccount(id int64) (*database.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id], nil
}

func (m *MockAccountRepository) GetAccountByRemoteKey(remoteKey string) (*database.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.RemoteKey == remoteKey {
			return account, nil
		}
	}
	return nil, nil
}

func (m *MockAccountRepository) GetAllAccounts() ([]database.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var accounts []database.Account
	for _, account := range m.accounts {
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

func (m *MockAccountRepository) UpsertAccount(remoteKey, name, feedURL string, maxDownloadCount int, autoSync bool, syncCron string) (int64, error) {
	return 0, nil
}

func (m *MockAccountRepository) UpdateSyncStatus(id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = append(m.statuses[id], status)
	return nil
}

func (m *MockAccountRepository) FinishSync(id int64, status string, newDownloads int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = append(m.statuses[id], status)
	m.syncDone[id] += newDownloads
	return nil
}

func (m *MockAccountRepository) UpdateAccountSchedule(id int64, autoSync bool, syncCron string) error {
	return nil
}

func (m *MockAccountRepository) LastStatus(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := m.statuses[id]
	if len(statuses) == 0 {
		return ""
	}
	return statuses[len(statuses)-1]
}

func (m *MockAccountRepository) TotalSynced(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncDone[id]
}

// MockPostRepository implements a simple mock for testing
type MockPostRepository struct {
	mu       sync.Mutex
	existing map[string]bool
	created  []database.Post
}

var _ database.PostRepository = (*MockPostRepository)(nil)

func NewMockPostRepository(existing ...string) *MockPostRepository {
	m := &MockPostRepository{existing: make(map[string]bool)}
	for _, id := range existing {
		m.existing[id] = true
	}
	return m
}

func (m *MockPostRepository) PostExists(remoteID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[remoteID], nil
}

func (m *MockPostRepository) CreatePost(post database.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existing[post.RemoteID] = true
	m.created = append(m.created, post)
	return nil
}

func (m *MockPostRepository) GetPostCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.existing), nil
}

func (m *MockPostRepository) GetPostCountByAccount(accountID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, post := range m.created {
		if post.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (m *MockPostRepository) Created() []database.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.Post(nil), m.created...)
}

// MockSettingRepository implements a simple mock for testing
type MockSettingRepository struct {
	mu     sync.Mutex
	values map[string]string
}

var _ database.SettingRepository = (*MockSettingRepository)(nil)

func NewMockSettingRepository() *MockSettingRepository {
	return &MockSettingRepository{values: map[string]string{
		database.SettingRemoteCredential: "session=test",
	}}
}

func (m *MockSettingRepository) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MockSettingRepository) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// FakeClient is an instrumented in-memory remote client
type FakeClient struct {
	mu         sync.Mutex
	posts      map[string][]remote.RemotePost // keyed by account remote key
	listErr    map[string]error
	failIDs    map[string]bool
	gate       chan struct{} // when set, Download blocks until the gate closes
	inFlight   atomic.Int32
	maxStarted atomic.Int32 // highest concurrent Download count observed
	listActive atomic.Int32
	maxListing atomic.Int32
}

var _ remote.Client = (*FakeClient)(nil)

func NewFakeClient() *FakeClient {
	return &FakeClient{
		posts:   make(map[string][]remote.RemotePost),
		listErr: make(map[string]error),
		failIDs: make(map[string]bool),
	}
}

func (f *FakeClient) SetPosts(remoteKey string, posts []remote.RemotePost) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[remoteKey] = posts
}

func (f *FakeClient) SetListError(remoteKey string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr[remoteKey] = err
}

func (f *FakeClient) FailDownload(remoteID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failIDs[remoteID] = true
}

// HoldDownloads makes Download block until the returned release func is called.
func (f *FakeClient) HoldDownloads() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

func (f *FakeClient) ListPosts(ctx context.Context, account database.Account, max int) ([]remote.RemotePost, error) {
	active := f.listActive.Add(1)
	defer f.listActive.Add(-1)
	for {
		observed := f.maxListing.Load()
		if active <= observed || f.maxListing.CompareAndSwap(observed, active) {
			break
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[account.RemoteKey]; err != nil {
		return nil, err
	}
	posts := f.posts[account.RemoteKey]
	if max > 0 && len(posts) > max {
		posts = posts[:max]
	}
	return append([]remote.RemotePost(nil), posts...), nil
}

func (f *FakeClient) Download(ctx context.Context, post remote.RemotePost, dir string) (*remote.Materialized, error) {
	active := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		observed := f.maxStarted.Load()
		if active <= observed || f.maxStarted.CompareAndSwap(observed, active) {
			break
		}
	}

	f.mu.Lock()
	gate := f.gate
	fail := f.failIDs[post.RemoteID]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, &downloadError{post.RemoteID}
	}

	return &remote.Materialized{MediaPath: dir + "/" + post.RemoteID + "/media.mp4"}, nil
}

func (f *FakeClient) InFlight() int32     { return f.inFlight.Load() }
func (f *FakeClient) MaxDownloads() int32 { return f.maxStarted.Load() }
func (f *FakeClient) MaxListings() int32  { return f.maxListing.Load() }

type downloadError struct {
	remoteID string
}

func (e *downloadError) Error() string {
	return "download failed: " + e.remoteID
}

// CapturePublisher records published events in order
type CapturePublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

var _ bus.Publisher = (*CapturePublisher)(nil)

func (p *CapturePublisher) Publish(event bus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *CapturePublisher) Events() []bus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bus.Event(nil), p.events...)
}
