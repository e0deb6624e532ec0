// Package executortest provides an in-memory executor for tests of the
// packages built on the executor boundary.
package executortest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fgaction/internal/action"
	"fgaction/internal/executor"
)

// Fake is an in-memory executor.NativeExecutor and executor.HeadlessDispatcher
// that records every call.
type Fake struct {
	mu        sync.Mutex
	alloc     executor.Allocator
	live      map[action.ID]action.Config
	dispatch  map[string]executor.HeadlessHandler
	cancels   map[action.ID]context.CancelFunc
	starts    int
	stops     map[action.ID]int
	updates   map[action.ID]int
	stopErrs  map[action.ID]error
	startErr  error
	updateErr error
	exp       chan executor.Expiration
}

// expirationBuffer bounds queued expiration notices.
const expirationBuffer = 64

// NewFake creates a Fake that takes identifiers from alloc.
func NewFake(alloc executor.Allocator) *Fake {
	return &Fake{
		alloc:    alloc,
		live:     make(map[action.ID]action.Config),
		dispatch: make(map[string]executor.HeadlessHandler),
		cancels:  make(map[action.ID]context.CancelFunc),
		stops:    make(map[action.ID]int),
		updates:  make(map[action.ID]int),
		stopErrs: make(map[action.ID]error),
		exp:      make(chan executor.Expiration, expirationBuffer),
	}
}

// FailStart makes every following Start fail with err.
func (f *Fake) FailStart(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

// FailStop makes Stop(id) fail with err. The context is still removed.
func (f *Fake) FailStop(id action.ID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopErrs[id] = err
}

// FailUpdate makes every following Update of a live id fail with err.
func (f *Fake) FailUpdate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

// Seed marks id as live without going through Start.
func (f *Fake) Seed(id action.ID, cfg action.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[id] = cfg
}

// Expire queues an expiration notice for id.
func (f *Fake) Expire(id action.ID, reason string) {
	f.exp <- executor.Expiration{ID: id, Reason: reason, At: time.Now()}
}

// Starts returns how many contexts were started.
func (f *Fake) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// StopCalls returns how many times Stop was called for id.
func (f *Fake) StopCalls(id action.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops[id]
}

// UpdateCalls returns how many times Update succeeded for id.
func (f *Fake) UpdateCalls(id action.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[id]
}

// Config returns the current config of a live id.
func (f *Fake) Config(id action.ID) (action.Config, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.live[id]
	return cfg, ok
}

func (f *Fake) RegisterHeadlessDispatch(taskName string, handler executor.HeadlessHandler) error {
	if taskName == "" || handler == nil {
		return fmt.Errorf("%w: task name and handler are required", action.ErrInvalidConfig)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatch[taskName] = handler
	return nil
}

func (f *Fake) Start(ctx context.Context, cfg action.Config) (action.ID, error) {
	f.mu.Lock()
	if f.startErr != nil {
		err := f.startErr
		f.mu.Unlock()
		return action.None, err
	}
	id := f.alloc()
	f.live[id] = cfg
	f.starts++
	handler := f.dispatch[cfg.TaskName]
	taskCtx, cancel := context.WithCancel(context.Background())
	f.cancels[id] = cancel
	f.mu.Unlock()

	if handler != nil {
		go handler(taskCtx, id, cfg)
	}
	return id, nil
}

func (f *Fake) Update(ctx context.Context, id action.ID, cfg action.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[id]; !ok {
		return fmt.Errorf("%w: %s", action.ErrUnknownIdentifier, id)
	}
	if f.updateErr != nil {
		return f.updateErr
	}
	f.live[id] = cfg
	f.updates[id]++
	return nil
}

func (f *Fake) Stop(ctx context.Context, id action.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops[id]++
	delete(f.live, id)
	if cancel, ok := f.cancels[id]; ok {
		cancel()
		delete(f.cancels, id)
	}
	return f.stopErrs[id]
}

func (f *Fake) StopAll(ctx context.Context) error {
	failed := action.StopErrors{}
	for _, id := range f.LiveIdentifiers() {
		if err := f.Stop(ctx, id); err != nil {
			failed[id] = err
		}
	}
	return failed.OrNil()
}

func (f *Fake) LiveIdentifiers() []action.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]action.ID, 0, len(f.live))
	for id := range f.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *Fake) Expirations() <-chan executor.Expiration {
	return f.exp
}

var (
	_ executor.NativeExecutor     = (*Fake)(nil)
	_ executor.HeadlessDispatcher = (*Fake)(nil)
)
