package downloader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Run is the transient handle of one in-progress execution. Its presence in
// the registry is the "is running" predicate; it is never persisted.
// Cancellation is advisory: the orchestrator polls Cancelled at safe points
// and lets admitted work finish.
type Run struct {
	ID  string
	Key string

	base   context.Context
	ctx    context.Context
	cancel context.CancelFunc
}

// Cancel sets the cancellation flag. Idempotent.
func (r *Run) Cancel() {
	r.cancel()
}

// Cancelled reports whether a stop was requested for this run or an ancestor.
func (r *Run) Cancelled() bool {
	return r.ctx.Err() != nil
}

// Done exposes the cancellation signal for select-based waits.
func (r *Run) Done() <-chan struct{} {
	return r.ctx.Done()
}

// Context returns the run's cancellable context. Derive child runs from it;
// do not pass it into remote calls.
func (r *Run) Context() context.Context {
	return r.ctx
}

// Base returns the context remote calls run under. It does not carry the
// run's cancellation: admitted work must outlive a stop request.
func (r *Run) Base() context.Context {
	return r.base
}

// TaskKey is the registry key for a task-level run.
func TaskKey(taskID int64) string {
	return fmt.Sprintf("task:%d", taskID)
}

// AccountKey is the registry key for an account run, shared by task workers
// and standalone syncs so the same account never runs twice concurrently.
func AccountKey(accountID int64) string {
	return fmt.Sprintf("account:%d", accountID)
}

// Registry tracks active runs. Begin is an atomic test-and-insert, so
// concurrent start requests for the same key admit exactly one run.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Run
}

func NewRegistry() *Registry {
	return &Registry{
		runs: make(map[string]*Run),
	}
}

// Begin registers a top-level run for key unless one is already active. The
// run's cancellation chains off base.
func (g *Registry) Begin(key string, base context.Context) (*Run, bool) {
	return g.insert(key, base, base)
}

// BeginChild registers a run nested under parent: cancelling the parent
// cancels the child, while the child's base context stays the parent's base
// so in-flight remote calls are never preempted.
func (g *Registry) BeginChild(key string, parent *Run) (*Run, bool) {
	return g.insert(key, parent.base, parent.ctx)
}

func (g *Registry) insert(key string, base, cancelParent context.Context) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.runs[key]; exists {
		return nil, false
	}

	ctx, cancel := context.WithCancel(cancelParent)
	run := &Run{
		ID:     uuid.NewString(),
		Key:    key,
		base:   base,
		ctx:    ctx,
		cancel: cancel,
	}
	g.runs[key] = run

	return run, true
}

// End removes the run from the registry and releases its context. Ending a
// run that was already replaced is a no-op.
func (g *Registry) End(run *Run) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if current, exists := g.runs[run.Key]; exists && current.ID == run.ID {
		delete(g.runs, run.Key)
	}
	run.cancel()
}

// Cancel requests cancellation of the active run for key, if any.
func (g *Registry) Cancel(key string) bool {
	g.mu.Lock()
	run, exists := g.runs[key]
	g.mu.Unlock()

	if !exists {
		return false
	}
	run.Cancel()
	return true
}

// Active reports whether a run is registered for key.
func (g *Registry) Active(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, exists := g.runs[key]
	return exists
}

// ActiveAccountIDs returns the account ids with an active run, whichever
// entry point started them.
func (g *Registry) ActiveAccountIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []int64
	for key := range g.runs {
		if rest, ok := strings.CutPrefix(key, "account:"); ok {
			if id, err := strconv.ParseInt(rest, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
