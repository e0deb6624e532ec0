// Package registry keeps the book of live foreground actions. It never talks
// to the native layer: stopping the OS context is the caller's job.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"fgaction/internal/action"
)

// LiveAction is the registry's record of a running action.
type LiveAction struct {
	ID        action.ID
	Handle    any
	Strategy  action.Strategy
	Config    action.Config
	StartedAt time.Time
}

// Registry allocates identifiers and maps them to live actions.
// The zero value is not usable; use New.
type Registry struct {
	mu    sync.RWMutex
	next  action.ID
	live  map[action.ID]*LiveAction
	nowFn func() time.Time
}

// New creates an empty registry whose first allocated identifier is 1.
func New() *Registry {
	return &Registry{
		live:  make(map[action.ID]*LiveAction),
		nowFn: time.Now,
	}
}

// Allocate returns the next unused identifier. Identifiers that are still
// live are skipped, so a wrapped counter never hands out a live id twice.
func (r *Registry) Allocate() action.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		r.next++
		if r.next == action.None {
			continue
		}
		if _, busy := r.live[r.next]; !busy {
			return r.next
		}
	}
}

// Register records a live action under id.
func (r *Registry) Register(id action.ID, handle any, strategy action.Strategy, cfg action.Config) error {
	if id == action.None {
		return fmt.Errorf("%w: identifier 0 is reserved", action.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[id]; ok {
		return fmt.Errorf("%w: %s", action.ErrDuplicateIdentifier, id)
	}
	r.live[id] = &LiveAction{
		ID:        id,
		Handle:    handle,
		Strategy:  strategy,
		Config:    cfg,
		StartedAt: r.nowFn(),
	}
	return nil
}

// Lookup returns a copy of the live record for id.
func (r *Registry) Lookup(id action.ID) (LiveAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	la, ok := r.live[id]
	if !ok {
		return LiveAction{}, false
	}
	return *la, true
}

// UpdateConfig replaces the config of a live action.
func (r *Registry) UpdateConfig(id action.ID, cfg action.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	la, ok := r.live[id]
	if !ok {
		return fmt.Errorf("%w: %s", action.ErrUnknownIdentifier, id)
	}
	la.Config = cfg
	return nil
}

// Release removes id. Releasing an absent identifier is a no-op.
func (r *Registry) Release(id action.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[id]; !ok {
		return false
	}
	delete(r.live, id)
	return true
}

// Take removes id and returns its record. Only the first caller for a live
// identifier gets ok; that caller owns stopping the action's context.
func (r *Registry) Take(id action.ID) (LiveAction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	la, ok := r.live[id]
	if !ok {
		return LiveAction{}, false
	}
	delete(r.live, id)
	return *la, true
}

// AllLive returns a sorted snapshot of the live identifiers.
func (r *Registry) AllLive() []action.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]action.ID, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns copies of all live records ordered by identifier.
func (r *Registry) Snapshot() []LiveAction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LiveAction, 0, len(r.live))
	for _, la := range r.live {
		out = append(out, *la)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
