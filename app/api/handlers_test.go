package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Everless321/dYm-web/app/bus"
	"github.com/Everless321/dYm-web/app/database"
	"github.com/Everless321/dYm-web/app/downloader"
	"github.com/Everless321/dYm-web/app/scheduler"
)

// MockTaskRunner implements a simple mock for testing
type MockTaskRunner struct {
	startErr error
	running  map[int64]bool
	started  []int64
	stopped  []int64
}

var _ downloader.TaskRunner = (*MockTaskRunner)(nil)

func (m *MockTaskRunner) StartTask(taskID int64) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, taskID)
	return nil
}

func (m *MockTaskRunner) StopTask(taskID int64) bool {
	m.stopped = append(m.stopped, taskID)
	return m.running[taskID]
}

func (m *MockTaskRunner) IsTaskRunning(taskID int64) bool {
	return m.running[taskID]
}

// MockAccountSyncer implements a simple mock for testing
type MockAccountSyncer struct {
	startErr error
	syncing  map[int64]bool
	active   int64
}

var _ downloader.AccountSyncer = (*MockAccountSyncer)(nil)

func (m *MockAccountSyncer) StartSync(accountID int64) error {
	return m.startErr
}

func (m *MockAccountSyncer) StopSync(accountID int64) bool {
	return m.syncing[accountID]
}

func (m *MockAccountSyncer) IsSyncing(accountID int64) bool {
	return m.syncing[accountID]
}

func (m *MockAccountSyncer) AnySyncing() (int64, bool) {
	return m.active, m.active != 0
}

// MockScheduler implements a simple mock for testing
type MockScheduler struct {
	validExpressions map[string]bool
	scheduledTasks   []database.Task
	unscheduled      []int64
	logs             []bus.SchedulerLog
	cleared          bool
}

var _ scheduler.SchedulerInterface = (*MockScheduler)(nil)

func (m *MockScheduler) ValidateExpression(expr string) bool {
	return m.validExpressions[expr]
}

func (m *MockScheduler) ScheduleTask(task database.Task) error {
	m.scheduledTasks = append(m.scheduledTasks, task)
	return nil
}

func (m *MockScheduler) UnscheduleTask(taskID int64) {
	m.unscheduled = append(m.unscheduled, taskID)
}

func (m *MockScheduler) ScheduleAccount(account database.Account) error {
	return nil
}

func (m *MockScheduler) UnscheduleAccount(accountID int64) {
	m.unscheduled = append(m.unscheduled, accountID)
}

func (m *MockScheduler) Logs() []bus.SchedulerLog {
	return m.logs
}

func (m *MockScheduler) ClearLogs() {
	m.cleared = true
	m.logs = nil
}

// MockTaskStore implements database.TaskRepository for handler tests
type MockTaskStore struct {
	mu        sync.Mutex
	tasks     map[int64]*database.TaskWithAccounts
	schedules map[int64]string
}

var _ database.TaskRepository = (*MockTaskStore)(nil)

func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks:     make(map[int64]*database.TaskWithAccounts),
		schedules: make(map[int64]string),
	}
}

func (m *MockTaskStore) GetTask(id int64) (*database.TaskWithAccounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id], nil
}

func (m *MockTaskStore) GetTaskByName(name string) (*database.Task, error) { return nil, nil }

func (m *MockTaskStore) GetAllTasks() ([]database.Task, error) { return nil, nil }

func (m *MockTaskStore) GetTaskCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks), nil
}

func (m *MockTaskStore) CreateTask(name string, concurrency int, autoSync bool, syncCron string) (int64, error) {
	return 0, nil
}

func (m *MockTaskStore) SetTaskAccounts(taskID int64, accountIDs []int64) error { return nil }

func (m *MockTaskStore) UpdateTaskStatus(id int64, status string) error { return nil }

func (m *MockTaskStore) FinishTask(id int64, status string, downloadedVideos int) error { return nil }

func (m *MockTaskStore) UpdateTaskSchedule(id int64, autoSync bool, syncCron string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[id] = syncCron
	return nil
}

// MockAccountStore implements database.AccountRepository for handler tests
type MockAccountStore struct {
	accounts  map[int64]*database.Account
	schedules map[int64]string
}

var _ database.AccountRepository = (*MockAccountStore)(nil)

func NewMockAccountStore() *MockAccountStore {
	return &MockAccountStore{
		accounts:  make(map[int64]*database.Account),
		schedules: make(map[int64]string),
	}
}

func (m *MockAccountStore) GetAccount(id int64) (*database.Account, error) {
	return m.accounts[id], nil
}

func (m *MockAccountStore) GetAccountByRemoteKey(remoteKey string) (*database.Account, error) {
	return nil, nil
}

func (m *MockAccountStore) GetAllAccounts() ([]database.Account, error) { return nil, nil }

func (m *MockAccountStore) UpsertAccount(remoteKey, name, feedURL string, maxDownloadCount int, autoSync bool, syncCron string) (int64, error) {
	return 0, nil
}

func (m *MockAccountStore) UpdateSyncStatus(id int64, status string) error { return nil }

func (m *MockAccountStore) FinishSync(id int64, status string, newDownloads int) error { return nil }

func (m *MockAccountStore) UpdateAccountSchedule(id int64, autoSync bool, syncCron string) error {
	m.schedules[id] = syncCron
	return nil
}

// MockPostStore implements database.PostRepository for handler tests
type MockPostStore struct {
	count int
}

var _ database.PostRepository = (*MockPostStore)(nil)

func (m *MockPostStore) PostExists(remoteID string) (bool, error) { return false, nil }

func (m *MockPostStore) CreatePost(post database.Post) error { return nil }

func (m *MockPostStore) GetPostCount() (int, error) { return m.count, nil }

func (m *MockPostStore) GetPostCountByAccount(accountID int64) (int, error) { return 0, nil }

type apiFixture struct {
	router       *gin.Engine
	runner       *MockTaskRunner
	syncer       *MockAccountSyncer
	scheduler    *MockScheduler
	taskStore    *MockTaskStore
	accountStore *MockAccountStore
}

func newAPIFixture(apiAccessKey string) *apiFixture {
	gin.SetMode(gin.TestMode)

	f := &apiFixture{
		runner:       &MockTaskRunner{running: make(map[int64]bool)},
		syncer:       &MockAccountSyncer{syncing: make(map[int64]bool)},
		scheduler:    &MockScheduler{validExpressions: map[string]bool{"0 3 * * *": true}},
		taskStore:    NewMockTaskStore(),
		accountStore: NewMockAccountStore(),
	}

	handler := NewHandler(f.taskStore, f.accountStore, &MockPostStore{},
		f.runner, f.syncer, f.scheduler, bus.New())
	f.router = NewServer(handler, apiAccessKey)
	return f
}

func (f *apiFixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) Response {
	t.Helper()
	var response Response
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return response
}

func seedStoreTask(f *apiFixture, id int64) {
	f.taskStore.tasks[id] = &database.TaskWithAccounts{
		Task: database.Task{ID: id, Name: "nightly", Status: database.TaskStatusPending, Concurrency: 2},
	}
}

func TestRunTask(t *testing.T) {
	f := newAPIFixture("")
	seedStoreTask(f, 1)

	recorder := f.request(t, "POST", "/api/tasks/1/run", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if response := decodeResponse(t, recorder); !response.Success {
		t.Errorf("Expected success envelope, got %+v", response)
	}
	if len(f.runner.started) != 1 || f.runner.started[0] != 1 {
		t.Errorf("Expected task 1 started, got %v", f.runner.started)
	}
}

func TestRunTaskErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{downloader.ErrNotFound, http.StatusNotFound},
		{downloader.ErrAlreadyRunning, http.StatusConflict},
		{downloader.ErrNoCredential, http.StatusBadRequest},
	}

	for _, tc := range cases {
		f := newAPIFixture("")
		f.runner.startErr = tc.err

		recorder := f.request(t, "POST", "/api/tasks/1/run", nil)
		if recorder.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, recorder.Code)
		}
		if response := decodeResponse(t, recorder); response.Success || response.Error == "" {
			t.Errorf("%v: expected error envelope, got %+v", tc.err, response)
		}
	}
}

func TestRunTaskInvalidID(t *testing.T) {
	f := newAPIFixture("")

	recorder := f.request(t, "POST", "/api/tasks/abc/run", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", recorder.Code)
	}
}

func TestStopTask(t *testing.T) {
	f := newAPIFixture("")
	f.runner.running[1] = true

	recorder := f.request(t, "POST", "/api/tasks/1/stop", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	if len(f.runner.stopped) != 1 {
		t.Errorf("Expected stop to be forwarded, got %v", f.runner.stopped)
	}
}

func TestGetTaskStatus(t *testing.T) {
	f := newAPIFixture("")
	seedStoreTask(f, 1)
	f.runner.running[1] = true

	recorder := f.request(t, "GET", "/api/tasks/1/status", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	response := decodeResponse(t, recorder)
	data, ok := response.Data.(map[string]any)
	if !ok {
		t.Fatalf("Expected object data, got %T", response.Data)
	}
	if data["running"] != true {
		t.Errorf("Expected running=true, got %v", data["running"])
	}
	if data["name"] != "nightly" {
		t.Errorf("Expected task name, got %v", data["name"])
	}
}

func TestGetTaskStatusNotFound(t *testing.T) {
	f := newAPIFixture("")

	recorder := f.request(t, "GET", "/api/tasks/5/status", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", recorder.Code)
	}
}

func TestStartSyncErrorMapping(t *testing.T) {
	f := newAPIFixture("")
	f.syncer.startErr = downloader.ErrAlreadyRunning

	recorder := f.request(t, "POST", "/api/sync/3/start", nil)
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", recorder.Code)
	}
}

func TestGetSyncStatus(t *testing.T) {
	f := newAPIFixture("")
	f.accountStore.accounts[3] = &database.Account{
		ID: 3, RemoteKey: "creator_c", Name: "Creator C", SyncStatus: database.SyncStatusIdle,
	}
	f.syncer.syncing[3] = true

	recorder := f.request(t, "GET", "/api/sync/3/status", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	response := decodeResponse(t, recorder)
	data := response.Data.(map[string]any)
	if data["syncing"] != true {
		t.Errorf("Expected syncing=true, got %v", data["syncing"])
	}
	if data["remoteKey"] != "creator_c" {
		t.Errorf("Expected remote key, got %v", data["remoteKey"])
	}
}

func TestGetActiveSync(t *testing.T) {
	f := newAPIFixture("")

	recorder := f.request(t, "GET", "/api/sync/active", nil)
	response := decodeResponse(t, recorder)
	data := response.Data.(map[string]any)
	if data["active"] != false {
		t.Errorf("Expected no active sync, got %v", data)
	}

	f.syncer.active = 7
	recorder = f.request(t, "GET", "/api/sync/active", nil)
	data = decodeResponse(t, recorder).Data.(map[string]any)
	if data["active"] != true || data["accountId"] != float64(7) {
		t.Errorf("Expected account 7 active, got %v", data)
	}
}

func TestValidateCron(t *testing.T) {
	f := newAPIFixture("")

	recorder := f.request(t, "POST", "/api/sync/validate-cron", ValidateCronRequest{Expression: "0 3 * * *"})
	data := decodeResponse(t, recorder).Data.(map[string]any)
	if data["valid"] != true {
		t.Errorf("Expected valid expression, got %v", data)
	}

	recorder = f.request(t, "POST", "/api/sync/validate-cron", ValidateCronRequest{Expression: "garbage"})
	data = decodeResponse(t, recorder).Data.(map[string]any)
	if data["valid"] != false {
		t.Errorf("Expected invalid expression, got %v", data)
	}
}

func TestScheduleTask(t *testing.T) {
	f := newAPIFixture("")
	seedStoreTask(f, 1)

	recorder := f.request(t, "POST", "/api/tasks/1/schedule", ScheduleRequest{AutoSync: true, SyncCron: "0 3 * * *"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	if f.taskStore.schedules[1] != "0 3 * * *" {
		t.Errorf("Expected schedule persisted, got %q", f.taskStore.schedules[1])
	}
	if len(f.scheduler.scheduledTasks) != 1 || f.scheduler.scheduledTasks[0].SyncCron != "0 3 * * *" {
		t.Errorf("Expected trigger registered, got %+v", f.scheduler.scheduledTasks)
	}
}

func TestScheduleTaskRejectsInvalidCron(t *testing.T) {
	f := newAPIFixture("")
	seedStoreTask(f, 1)

	recorder := f.request(t, "POST", "/api/tasks/1/schedule", ScheduleRequest{AutoSync: true, SyncCron: "garbage"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", recorder.Code)
	}
	if len(f.scheduler.scheduledTasks) != 0 {
		t.Error("Expected no trigger registered")
	}
}

func TestScheduleTaskDisable(t *testing.T) {
	f := newAPIFixture("")
	seedStoreTask(f, 1)

	recorder := f.request(t, "POST", "/api/tasks/1/schedule", ScheduleRequest{AutoSync: false})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	if len(f.scheduler.unscheduled) != 1 || f.scheduler.unscheduled[0] != 1 {
		t.Errorf("Expected task unscheduled, got %v", f.scheduler.unscheduled)
	}
}

func TestSchedulerLogs(t *testing.T) {
	f := newAPIFixture("")
	f.scheduler.logs = []bus.SchedulerLog{{Level: "info", Message: "Scheduled run started"}}

	recorder := f.request(t, "GET", "/api/scheduler/logs", nil)
	data := decodeResponse(t, recorder).Data.(map[string]any)
	if data["total"] != float64(1) {
		t.Errorf("Expected 1 log entry, got %v", data["total"])
	}

	recorder = f.request(t, "DELETE", "/api/scheduler/logs", nil)
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", recorder.Code)
	}
	if !f.scheduler.cleared {
		t.Error("Expected logs to be cleared")
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture("secret")

	// Health stays open even when the API requires a key
	recorder := f.request(t, "GET", "/health", nil)
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", recorder.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	f := newAPIFixture("secret")
	seedStoreTask(f, 1)

	recorder := f.request(t, "GET", "/api/tasks/1/status", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", recorder.Code)
	}

	req := httptest.NewRequest("GET", "/api/tasks/1/status", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/tasks/1/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with correct key, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/tasks/1/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with bearer token, got %d", rec.Code)
	}
}
