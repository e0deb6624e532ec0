package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppStateBroadcaster(t *testing.T) {
	b := NewAppStateBroadcaster()

	var got []AppState
	unsubscribe := b.Subscribe(func(s AppState) { got = append(got, s) })

	b.Publish(AppActive) // initial state, not a transition
	b.Publish(AppBackground)
	b.Publish(AppBackground)
	b.Publish(AppActive)

	unsubscribe()
	unsubscribe()
	b.Publish(AppInactive)

	assert.Equal(t, []AppState{AppBackground, AppActive}, got)
	assert.Equal(t, 0, b.Subscribers())
}

func TestStaticAppState(t *testing.T) {
	unsubscribe := StaticAppState(AppActive).Subscribe(func(AppState) {
		t.Fatal("static state never notifies")
	})
	unsubscribe()
	assert.Equal(t, "background", AppBackground.String())
}
