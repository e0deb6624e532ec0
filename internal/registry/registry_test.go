package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fgaction/internal/action"
)

func TestAllocate_StartsAtOneAndIncreases(t *testing.T) {
	r := New()

	assert.Equal(t, action.ID(1), r.Allocate())
	assert.Equal(t, action.ID(2), r.Allocate())
	assert.Equal(t, action.ID(3), r.Allocate())
	assert.Empty(t, r.AllLive(), "allocate must not record a live action")
}

func TestAllocate_SkipsLiveOnWrap(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, nil, action.InProcess, action.Config{}))

	r.next = ^action.ID(0) // next increment wraps to 0, then 1 (live), then 2
	assert.Equal(t, action.ID(2), r.Allocate())
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	id := r.Allocate()

	require.NoError(t, r.Register(id, "h", action.NativeDirect, action.Config{Title: "a"}))
	err := r.Register(id, "h2", action.NativeDirect, action.Config{})
	require.ErrorIs(t, err, action.ErrDuplicateIdentifier)

	la, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "h", la.Handle)
	assert.Equal(t, "a", la.Config.Title)
}

func TestRegister_ZeroRejected(t *testing.T) {
	r := New()
	require.Error(t, r.Register(action.None, nil, action.InProcess, action.Config{}))
}

func TestRelease_Idempotent(t *testing.T) {
	r := New()
	id := r.Allocate()
	require.NoError(t, r.Register(id, nil, action.InProcess, action.Config{}))

	assert.True(t, r.Release(id))
	assert.False(t, r.Release(id))
	assert.False(t, r.Release(99))

	_, ok := r.Lookup(id)
	assert.False(t, ok)
}

func TestTake_OnlyFirstCallerWins(t *testing.T) {
	r := New()
	id := r.Allocate()
	cfg := action.Config{TaskName: "t", Title: "sync"}
	require.NoError(t, r.Register(id, nil, action.NativeHeadless, cfg))

	const takers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []LiveAction
	)
	for i := 0; i < takers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if la, ok := r.Take(id); ok {
				mu.Lock()
				wins = append(wins, la)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, cfg, wins[0].Config)
	assert.Equal(t, action.NativeHeadless, wins[0].Strategy)
	assert.False(t, r.Release(id))
	assert.Equal(t, 0, r.Len())
}

func TestUpdateConfig(t *testing.T) {
	r := New()
	require.ErrorIs(t, r.UpdateConfig(42, action.Config{}), action.ErrUnknownIdentifier)

	id := r.Allocate()
	require.NoError(t, r.Register(id, nil, action.NativeHeadless, action.Config{Title: "old"}))
	require.NoError(t, r.UpdateConfig(id, action.Config{Title: "new"}))

	la, _ := r.Lookup(id)
	assert.Equal(t, "new", la.Config.Title)
}

func TestLookup_ReturnsCopy(t *testing.T) {
	r := New()
	id := r.Allocate()
	require.NoError(t, r.Register(id, nil, action.InProcess, action.Config{Title: "orig"}))

	la, _ := r.Lookup(id)
	la.Config.Title = "mutated"

	again, _ := r.Lookup(id)
	assert.Equal(t, "orig", again.Config.Title)
}

func TestConcurrentAllocateRegisterRelease(t *testing.T) {
	r := New()
	const workers = 64

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[action.ID]bool)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := r.Allocate()
			mu.Lock()
			dup := seen[id]
			seen[id] = true
			mu.Unlock()
			assert.False(t, dup, "identifier %s allocated twice", id)

			assert.NoError(t, r.Register(id, nil, action.NativeDirect, action.Config{}))
			_, ok := r.Lookup(id)
			assert.True(t, ok)
			r.Release(id)
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)
	assert.Equal(t, 0, r.Len())
}

func TestSnapshotOrdered(t *testing.T) {
	r := New()
	for _, id := range []action.ID{5, 2, 9} {
		require.NoError(t, r.Register(id, nil, action.NativeDirect, action.Config{}))
	}
	assert.Equal(t, []action.ID{2, 5, 9}, r.AllLive())

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, action.ID(2), snap[0].ID)
	assert.Equal(t, action.ID(9), snap[2].ID)
}
