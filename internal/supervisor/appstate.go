package supervisor

import (
	"sync"
)

// AppState is the host application's visibility.
type AppState int

const (
	AppActive AppState = iota
	AppBackground
	AppInactive
)

func (s AppState) String() string {
	switch s {
	case AppActive:
		return "active"
	case AppBackground:
		return "background"
	case AppInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// AppStateSource notifies about foreground/background transitions of the host application.
type AppStateSource interface {
	Subscribe(fn func(AppState)) (unsubscribe func())
}

// StaticAppState never changes. Daemons without a UI use it.
type StaticAppState AppState

func (StaticAppState) Subscribe(func(AppState)) func() { return func() {} }

// AppStateBroadcaster is an AppStateSource fed by the embedding host.
type AppStateBroadcaster struct {
	mu    sync.RWMutex
	subs  map[uint64]func(AppState)
	next  uint64
	state AppState
}

// NewAppStateBroadcaster creates a broadcaster in the active state.
func NewAppStateBroadcaster() *AppStateBroadcaster {
	return &AppStateBroadcaster{subs: make(map[uint64]func(AppState))}
}

func (b *AppStateBroadcaster) Subscribe(fn func(AppState)) func() {
	b.mu.Lock()
	b.next++
	key := b.next
	b.subs[key] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, key)
			b.mu.Unlock()
		})
	}
}

// Publish records a transition and notifies subscribers. Repeating the
// current state is not a transition.
func (b *AppStateBroadcaster) Publish(state AppState) {
	b.mu.Lock()
	if state == b.state {
		b.mu.Unlock()
		return
	}
	b.state = state
	fns := make([]func(AppState), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Subscribers returns the number of active subscriptions.
func (b *AppStateBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
